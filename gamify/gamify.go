package gamify

import (
	"go.uber.org/zap"

	mem "hanziquest/adapters/memory"
	"hanziquest/catalog"
	"hanziquest/engine"
	"hanziquest/integrations/webhook"
	"hanziquest/leaderboard"
	"hanziquest/realtime"
)

// Option configures the engine builder.
type Option func(*config)

type config struct {
	store   engine.Store
	catalog *catalog.Catalog
	mode    engine.DispatchMode
	hub     *realtime.Hub
	board   leaderboard.Board
	sink    *webhook.Sink
	log     *zap.Logger
	engine  []engine.Option
	bus     []engine.BusOption
}

// WithStore sets the persistence adapter.
func WithStore(s engine.Store) Option { return func(c *config) { c.store = s } }

// WithCatalog sets the reference data.
func WithCatalog(cat *catalog.Catalog) Option { return func(c *config) { c.catalog = cat } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard keeps b updated from xp_awarded events.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithWebhook forwards milestone events to s.
func WithWebhook(s *webhook.Sink) Option { return func(c *config) { c.sink = s } }

func WithLogger(l *zap.Logger) Option { return func(c *config) { c.log = l } }

// WithEngineOptions passes options through to engine.New.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) { c.engine = append(c.engine, opts...) }
}

// WithBusOptions tunes the event bus (queue size, workers).
func WithBusOptions(opts ...engine.BusOption) Option {
	return func(c *config) { c.bus = append(c.bus, opts...) }
}

// New builds a configured Engine. If not provided, defaults are used:
//   - store: in-memory
//   - catalog: the embedded default catalog
//   - dispatch: async
func New(opts ...Option) *engine.Engine {
	cfg := &config{mode: engine.DispatchAsync, log: zap.NewNop()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}
	if cfg.catalog == nil {
		cfg.catalog = catalog.Default()
	}
	bus := engine.NewEventBus(cfg.mode, append([]engine.BusOption{engine.WithBusLogger(cfg.log)}, cfg.bus...)...)
	eng := engine.New(cfg.store, cfg.catalog, bus, append([]engine.Option{engine.WithLogger(cfg.log)}, cfg.engine...)...)
	if cfg.hub != nil {
		cfg.hub.Follow(eng)
	}
	if cfg.board != nil {
		leaderboard.Follow(eng, cfg.board, cfg.log)
	}
	if cfg.sink != nil {
		cfg.sink.Follow(eng)
	}
	return eng
}
