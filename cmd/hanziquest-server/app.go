package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hanziquest/adapters/gormstore"
	"hanziquest/adapters/jsonfile"
	mem "hanziquest/adapters/memory"
	redisAdapter "hanziquest/adapters/redis"
	sqlxAdapter "hanziquest/adapters/sqlx"
	"hanziquest/analytics"
	"hanziquest/api/httpapi"
	"hanziquest/catalog"
	"hanziquest/config"
	"hanziquest/core"
	"hanziquest/engine"
	"hanziquest/gamify"
	"hanziquest/integrations/webhook"
	"hanziquest/leaderboard"
	"hanziquest/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Hub       *realtime.Hub
	Engine    *engine.Engine
	Analytics *analytics.Service
	Handler   http.Handler
	Server    *http.Server
}

// provideConfig loads HANZIQUEST_CONFIG_FILE if set, else the HANZIQUEST_PROFILE
// preset, else plain defaults. Environment overrides apply in every case.
func provideConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv("HANZIQUEST_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	if profile := os.Getenv("HANZIQUEST_PROFILE"); profile != "" {
		return config.LoadProfile(profile)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Engine.CatalogPath == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Engine.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Engine.CatalogPath, err)
	}
	return cat, nil
}

// provideRedis connects only when the cache or the leaderboard needs Redis.
func provideRedis(cfg *config.Config, log *zap.Logger) (*goredis.Client, func(), error) {
	if !cfg.Cache.Enabled && cfg.Leaderboard.Backend != "redis" {
		return nil, func() {}, nil
	}
	client, err := redisAdapter.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
	return client, func() { _ = client.Close() }, nil
}

func provideStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (engine.Store, func(), error) {
	store, closer, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info("storage ready", zap.String("adapter", cfg.Storage.Adapter))
	return store, func() {
		if closer != nil {
			if err := closer(); err != nil {
				log.Warn("closing storage", zap.Error(err))
			}
		}
	}, nil
}

func provideLeaderboard(cfg *config.Config, rdb *goredis.Client) leaderboard.Board {
	if cfg.Leaderboard.Backend == "redis" && rdb != nil {
		return redisAdapter.NewLeaderboard(rdb, cfg.Redis.KeyPrefix)
	}
	return leaderboard.NewSkipList()
}

// provideWebhook returns nil when no endpoints are configured.
func provideWebhook(cfg *config.Config, log *zap.Logger) *webhook.Sink {
	if len(cfg.Webhook.Endpoints) == 0 {
		return nil
	}
	types := make([]core.EventType, 0, len(cfg.Webhook.Events))
	for _, e := range cfg.Webhook.Events {
		types = append(types, core.EventType(e))
	}
	opts := []webhook.Option{
		webhook.WithTimeout(cfg.Webhook.Timeout),
		webhook.WithEvents(types...),
		webhook.WithLogger(log),
	}
	if cfg.Webhook.Secret != "" {
		opts = append(opts, webhook.WithSecret(cfg.Webhook.Secret))
	}
	if cfg.Webhook.RatePerSecond > 0 {
		opts = append(opts, webhook.WithRateLimit(cfg.Webhook.RatePerSecond, cfg.Webhook.Burst))
	}
	return webhook.New(cfg.Webhook.Endpoints, opts...)
}

func provideEngine(
	cfg *config.Config,
	log *zap.Logger,
	store engine.Store,
	cat *catalog.Catalog,
	hub *realtime.Hub,
	board leaderboard.Board,
	sink *webhook.Sink,
	rdb *goredis.Client,
) (*engine.Engine, func(), error) {
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("engine timezone: %w", err)
	}
	mode := engine.DispatchAsync
	if cfg.Engine.DispatchMode == "sync" {
		mode = engine.DispatchSync
	}
	engineOpts := []engine.Option{
		engine.WithTimezone(loc),
		engine.WithMaxPackSize(cfg.Engine.MaxPackSize),
	}
	if cfg.Cache.Enabled && rdb != nil {
		engineOpts = append(engineOpts, engine.WithCache(redisAdapter.NewProgressCache(rdb, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL)))
	}
	opts := []gamify.Option{
		gamify.WithStore(store),
		gamify.WithCatalog(cat),
		gamify.WithDispatchMode(mode),
		gamify.WithBusOptions(engine.WithQueueSize(cfg.Engine.EventQueueSize), engine.WithWorkers(cfg.Engine.EventWorkers)),
		gamify.WithRealtime(hub),
		gamify.WithLeaderboard(board),
		gamify.WithLogger(log),
		gamify.WithEngineOptions(engineOpts...),
	}
	if sink != nil {
		opts = append(opts, gamify.WithWebhook(sink))
	}
	eng := gamify.New(opts...)
	return eng, eng.Close, nil
}

// provideAnalytics returns nil when analytics is disabled.
func provideAnalytics(cfg *config.Config, log *zap.Logger, eng *engine.Engine) (*analytics.Service, func(), error) {
	if !cfg.Analytics.Enabled {
		return nil, func() {}, nil
	}
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("analytics timezone: %w", err)
	}
	var exporters []analytics.Exporter
	if cfg.Analytics.LogWindows {
		exporters = append(exporters, analytics.NewLogExporter(log.Named("analytics")))
	}
	for _, ep := range cfg.Analytics.Endpoints {
		exporters = append(exporters, analytics.NewHTTPExporter(ep, cfg.Analytics.APIKey, cfg.Analytics.BatchSize, cfg.Analytics.Timeout))
	}
	opts := []analytics.ServiceOption{
		analytics.WithInterval(cfg.Analytics.Interval),
		analytics.WithLogger(log),
	}
	if len(exporters) > 0 {
		opts = append(opts, analytics.WithExporter(analytics.NewMultiExporter(exporters...)))
	}
	svc := analytics.NewService(eng, loc, opts...)
	return svc, svc.Close, nil
}

func provideHandler(eng *engine.Engine, hub *realtime.Hub, board leaderboard.Board, stats *analytics.Service, cfg *config.Config, log *zap.Logger) http.Handler {
	opts := httpapi.Options{
		PathPrefix:          cfg.Server.PathPrefix,
		AllowCORSOrigin:     cfg.Server.CORSOrigin,
		APIKeys:             cfg.Security.APIKeys,
		RateLimitEnabled:    cfg.Security.EnableRateLimit,
		RateLimitRPM:        cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:      cfg.Security.RateLimit.BurstSize,
		Leaderboard:         board,
		LeaderboardLimit:    cfg.Leaderboard.DefaultLimit,
		LeaderboardMaxLimit: cfg.Leaderboard.MaxLimit,
		Logger:              log,
	}
	if stats != nil {
		opts.Analytics = stats
	}
	return httpapi.NewMux(eng, hub, opts)
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging builds a zap logger from the logging section.
func setupLogging(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	switch cfg.Logging.Format {
	case "text":
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{cfg.Logging.Output}
	zc.ErrorOutputPaths = []string{"stderr"}
	if len(cfg.Logging.Attributes) > 0 {
		zc.InitialFields = make(map[string]any, len(cfg.Logging.Attributes))
		for k, v := range cfg.Logging.Attributes {
			zc.InitialFields[k] = v
		}
	}
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(log)
	return log, nil
}

// setupStorage creates the configured store and its close func (nil when there is nothing to close).
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Store, func() error, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return s, nil, nil
	case "sql":
		s, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql storage: %w", err)
		}
		return s, s.Close, nil
	case "gorm":
		s, err := gormstore.Open(cfg.Storage.Gorm)
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm storage: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
