package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"hanziquest/core"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// errorCodes maps engine errors to HTTP status and a stable code, most specific first.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{core.ErrUnknownEventKind, http.StatusBadRequest, "unknown_event_kind"},
	{core.ErrMissingMetadata, http.StatusBadRequest, "missing_metadata"},
	{core.ErrOutOfOrderActivity, http.StatusBadRequest, "out_of_order_activity"},
	{core.ErrUnknownSource, http.StatusBadRequest, "unknown_source"},
	{core.ErrInvalidPackSize, http.StatusBadRequest, "invalid_pack_size"},
	{core.ErrUnknownCard, http.StatusBadRequest, "unknown_card"},
	{core.ErrInvalidTimezone, http.StatusBadRequest, "invalid_timezone"},
	{core.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{core.ErrMissionNotFound, http.StatusNotFound, "mission_not_found"},
	{core.ErrMissionNotCompleted, http.StatusConflict, "mission_not_completed"},
	{core.ErrMissionAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{core.ErrNoSpins, http.StatusConflict, "no_spins"},
	{core.ErrNoInventory, http.StatusServiceUnavailable, "no_inventory"},
	{core.ErrStorage, http.StatusServiceUnavailable, "storage_unavailable"},
}

func classify(err error) (int, string) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}
