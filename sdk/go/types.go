package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hanziquest/core"
	"hanziquest/engine"
	"hanziquest/leaderboard"
)

// Response types are shared with the server so both sides agree on the JSON.
type (
	EventResult       = engine.EventResult
	ProgressView      = engine.ProgressView
	SpinResult        = engine.SpinResult
	PackResult        = engine.PackResult
	ClaimResult       = engine.ClaimResult
	MissionStatus     = engine.MissionStatus
	AchievementStatus = engine.AchievementStatus
	CollectionView    = engine.CollectionView
	LeaderboardEntry  = leaderboard.Entry
)

// Event is one learning activity to record.
type Event struct {
	Kind       core.EventKind `json:"event_kind"`
	Metadata   any            `json:"metadata,omitempty"`
	OccurredAt *time.Time     `json:"occurred_at,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a non-2xx response. errors.Is matches it against the core
// sentinel errors, e.g. errors.Is(err, core.ErrNoSpins).
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hanziquest: %d %s: %s", e.Status, e.Code, e.Message)
}

var codeErrors = map[string]error{
	"unknown_event_kind":    core.ErrUnknownEventKind,
	"missing_metadata":      core.ErrMissingMetadata,
	"out_of_order_activity": core.ErrOutOfOrderActivity,
	"unknown_source":        core.ErrUnknownSource,
	"invalid_pack_size":     core.ErrInvalidPackSize,
	"unknown_card":          core.ErrUnknownCard,
	"invalid_timezone":      core.ErrInvalidTimezone,
	"validation_failed":     core.ErrValidation,
	"mission_not_found":     core.ErrMissionNotFound,
	"mission_not_completed": core.ErrMissionNotCompleted,
	"already_claimed":       core.ErrMissionAlreadyClaimed,
	"no_spins":              core.ErrNoSpins,
	"no_inventory":          core.ErrNoInventory,
	"storage_unavailable":   core.ErrStorage,
}

func (e *APIError) Unwrap() error { return codeErrors[e.Code] }

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyLearnerID is returned when the learner id is empty.
var ErrEmptyLearnerID = errors.New("learner id is required")
