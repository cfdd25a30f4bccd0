package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hanziquest/core"
	"hanziquest/engine"
	"hanziquest/leaderboard"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	eng     *engine.Engine
	board   leaderboard.Board
	stats   Summarizer
	log     *zap.Logger
	lbLimit int
	lbMax   int
}

type eventBody struct {
	EventKind  string          `json:"event_kind"`
	Metadata   json.RawMessage `json:"metadata"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Timezone   string          `json:"timezone,omitempty"`
}

// claimBody is optional; the timezone may also come as a query parameter.
type claimBody struct {
	Timezone string `json:"timezone,omitempty"`
}

type packBody struct {
	Source   string `json:"source"`
	PackSize int    `json:"pack_size"`
}

func (h *handlers) recordEvent(w http.ResponseWriter, r *http.Request) {
	var body eventBody
	if !decodeBody(w, r, &body) {
		return
	}
	kind, err := core.ParseEventKind(body.EventKind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ec, err := core.DecodeContext(kind, body.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := engine.EventRequest{
		LearnerID: learnerParam(r),
		Context:   ec,
		Timezone:  body.Timezone,
	}
	if body.OccurredAt != nil {
		req.OccurredAt = *body.OccurredAt
	}
	res, err := h.eng.RecordEvent(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	view, err := h.eng.GetProgress(r.Context(), learnerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) spinWheel(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.SpinWheel(r.Context(), learnerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) openCardPack(w http.ResponseWriter, r *http.Request) {
	var body packBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.eng.OpenCardPack(r.Context(), engine.PackRequest{
		LearnerID: learnerParam(r),
		Source:    body.Source,
		PackSize:  body.PackSize,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) claimMission(w http.ResponseWriter, r *http.Request) {
	var body claimBody
	if !decodeBody(w, r, &body) {
		return
	}
	tz := body.Timezone
	if tz == "" {
		tz = r.URL.Query().Get("timezone")
	}
	res, err := h.eng.ClaimMission(r.Context(), engine.ClaimRequest{
		LearnerID: learnerParam(r),
		MissionID: chi.URLParam(r, "missionID"),
		Timezone:  tz,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) missions(w http.ResponseWriter, r *http.Request) {
	board, err := h.eng.MissionBoard(r.Context(), learnerParam(r), r.URL.Query().Get("timezone"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"missions": board})
}

func (h *handlers) achievements(w http.ResponseWriter, r *http.Request) {
	board, err := h.eng.AchievementBoard(r.Context(), learnerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": board})
}

func (h *handlers) collection(w http.ResponseWriter, r *http.Request) {
	view, err := h.eng.Collection(r.Context(), learnerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 20, 200)
	if !ok {
		return
	}
	events, err := h.eng.RecentEvents(r.Context(), learnerParam(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, h.lbLimit, h.lbMax)
	if !ok {
		return
	}
	entries, err := h.board.Top(r.Context(), limit)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", core.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handlers) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, 5, 50)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Summary(limit))
}

// health verifies the store answers.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	code := http.StatusOK
	if err := h.eng.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	}
	writeJSON(w, code, status)
}

func learnerParam(r *http.Request) core.LearnerID {
	return core.LearnerID(chi.URLParam(r, "learnerID"))
}

func limitParam(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err))
	}
	writeError(w, status, code, err.Error(), nil)
}
