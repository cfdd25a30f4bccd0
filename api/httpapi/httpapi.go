package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	wsadapter "hanziquest/adapters/websocket"
	"hanziquest/analytics"
	"hanziquest/engine"
	"hanziquest/leaderboard"
	"hanziquest/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int

	// Leaderboard backs GET /leaderboard. The route is absent when nil.
	Leaderboard         leaderboard.Board
	LeaderboardLimit    int
	LeaderboardMaxLimit int

	// Analytics backs GET /analytics/summary. The route is absent when nil.
	Analytics Summarizer

	Logger *zap.Logger
}

// Summarizer reports engagement counters.
type Summarizer interface {
	Summary(limit int) analytics.Summary
}

// NewMux builds an http.Handler exposing the learner REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/learners/{id}/events
//   - GET  {prefix}/learners/{id}/progress
//   - POST {prefix}/learners/{id}/wheel/spin
//   - POST {prefix}/learners/{id}/packs
//   - GET  {prefix}/learners/{id}/missions?timezone=
//   - POST {prefix}/learners/{id}/missions/{missionID}/claim
//   - GET  {prefix}/learners/{id}/achievements
//   - GET  {prefix}/learners/{id}/collection
//   - GET  {prefix}/learners/{id}/events?limit=20
//   - GET  {prefix}/leaderboard?limit=10
//   - GET  {prefix}/analytics/summary?limit=5
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws?learner_id=
func NewMux(eng *engine.Engine, hub *realtime.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{eng: eng, board: opts.Leaderboard, stats: opts.Analytics, log: log, lbLimit: opts.LeaderboardLimit, lbMax: opts.LeaderboardMaxLimit}
	if h.lbLimit <= 0 {
		h.lbLimit = 10
	}
	if h.lbMax < h.lbLimit {
		h.lbMax = 100
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	if opts.AllowCORSOrigin != "" {
		r.Use(withCORS(opts.AllowCORSOrigin))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		// health stays reachable for probes without credentials
		r.Get("/healthz", h.health)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(withAPIKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(withRateLimit(opts.RateLimitRPM, opts.RateLimitBurst))
			}

			if hub != nil {
				wsOpts := []wsadapter.Option{wsadapter.WithLogger(log)}
				if opts.AllowCORSOrigin != "" {
					wsOpts = append(wsOpts, wsadapter.WithAllowedOrigins([]string{opts.AllowCORSOrigin}))
				}
				r.Handle("/ws", wsadapter.Handler(hub, wsOpts...))
			}
			if h.board != nil {
				r.Get("/leaderboard", h.leaderboard)
			}
			if h.stats != nil {
				r.Get("/analytics/summary", h.analyticsSummary)
			}

			r.Route("/learners/{learnerID}", func(r chi.Router) {
				r.Post("/events", h.recordEvent)
				r.Get("/events", h.recentEvents)
				r.Get("/progress", h.progress)
				r.Post("/wheel/spin", h.spinWheel)
				r.Post("/packs", h.openCardPack)
				r.Get("/missions", h.missions)
				r.Post("/missions/{missionID}/claim", h.claimMission)
				r.Get("/achievements", h.achievements)
				r.Get("/collection", h.collection)
			})
		})
	}
	if prefix := normalizePrefix(opts.PathPrefix); prefix == "/" {
		routes(r)
	} else {
		r.Route(prefix, routes)
	}
	return r
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
