package config

import (
	"encoding/json"
	"time"

	"hanziquest/adapters/gormstore"
	"hanziquest/adapters/redis"
	"hanziquest/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment"`
	Profile     string      `json:"profile"`

	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Redis       redis.Config      `json:"redis"`
	Cache       CacheConfig       `json:"cache"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Logging     LoggingConfig     `json:"logging"`
	Security    SecurityConfig    `json:"security"`
	Webhook     WebhookConfig     `json:"webhook"`
	Engine      EngineConfig      `json:"engine"`
	Analytics   AnalyticsConfig   `json:"analytics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address"`
	PathPrefix        string        `json:"path_prefix"`
	CORSOrigin        string        `json:"cors_origin"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
}

// StorageConfig selects and configures the learner store.
type StorageConfig struct {
	Adapter string           `json:"adapter"` // memory, file, sql, gorm
	SQL     sqlx.Config      `json:"sql"`
	Gorm    gormstore.Config `json:"gorm"`
	File    FileConfig       `json:"file"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path"`
}

// CacheConfig enables the Redis progress cache.
type CacheConfig struct {
	Enabled bool `json:"enabled"`
}

type LeaderboardConfig struct {
	Backend      string `json:"backend"` // memory, redis
	DefaultLimit int    `json:"default_limit"`
	MaxLimit     int    `json:"max_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level"`
	Format     string            `json:"format"`
	Output     string            `json:"output"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit"`
	RateLimit       RateLimitConfig `json:"rate_limit"`
	APIKeys         []string        `json:"api_keys"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// AnalyticsConfig controls engagement aggregation and export.
type AnalyticsConfig struct {
	Enabled    bool          `json:"enabled"`
	Interval   time.Duration `json:"interval"`
	LogWindows bool          `json:"log_windows"`
	Endpoints  []string      `json:"endpoints"`
	APIKey     string        `json:"api_key"`
	BatchSize  int           `json:"batch_size"`
	Timeout    time.Duration `json:"timeout"`
}

// WebhookConfig lists endpoints that receive milestone events.
type WebhookConfig struct {
	Endpoints     []string      `json:"endpoints"`
	Events        []string      `json:"events"`
	Secret        string        `json:"secret"`
	Timeout       time.Duration `json:"timeout"`
	RatePerSecond float64       `json:"rate_per_second"`
	Burst         int           `json:"burst"`
}

// EngineConfig tunes the progression engine.
type EngineConfig struct {
	CatalogPath    string `json:"catalog_path"` // empty uses the embedded catalog
	Timezone       string `json:"timezone"`
	MaxPackSize    int    `json:"max_pack_size"`
	DispatchMode   string `json:"dispatch_mode"` // sync, async
	EventQueueSize int    `json:"event_queue_size"`
	EventWorkers   int    `json:"event_workers"`
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			Gorm:    gormstore.DefaultConfig(),
			File: FileConfig{
				Path: "./data/hanziquest.json",
			},
		},
		Redis: redis.DefaultConfig(),
		Cache: CacheConfig{Enabled: false},
		Leaderboard: LeaderboardConfig{
			Backend:      "memory",
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
		Webhook: WebhookConfig{
			Endpoints: []string{},
			Events:    []string{"level_up", "achievement_unlocked", "mission_completed", "mission_claimed"},
			Timeout:   2 * time.Second,
			Burst:     1,
		},
		Analytics: AnalyticsConfig{
			Enabled:   true,
			Interval:  time.Minute,
			Endpoints: []string{},
			BatchSize: 3,
			Timeout:   10 * time.Second,
		},
		Engine: EngineConfig{
			Timezone:       "Asia/Ho_Chi_Minh",
			MaxPackSize:    10,
			DispatchMode:   "async",
			EventQueueSize: 1024,
			EventWorkers:   4,
		},
	}
}

// profiles overlay DefaultConfig per deployment environment.
var profiles = map[string]func(*Config){
	"development": func(c *Config) {
		c.Environment = EnvDevelopment
		c.Logging.Level = "debug"
		c.Logging.Format = "text"
	},
	"testing": func(c *Config) {
		c.Environment = EnvTesting
		c.Logging.Level = "warn"
		c.Engine.DispatchMode = "sync"
	},
	"staging": func(c *Config) {
		c.Environment = EnvStaging
		c.Storage.Adapter = "sql"
		c.Security.EnableRateLimit = true
	},
	"production": func(c *Config) {
		c.Environment = EnvProduction
		c.Storage.Adapter = "sql"
		c.Cache.Enabled = true
		c.Leaderboard.Backend = "redis"
		c.Security.EnableRateLimit = true
		c.Server.CORSOrigin = ""
	},
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Gorm.DSN != "" && cfg.Storage.Gorm.Dialect != gormstore.DialectSQLite {
		cfg.Storage.Gorm.DSN = "[REDACTED]"
	}
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = "[REDACTED]"
	}
	if cfg.Analytics.APIKey != "" {
		cfg.Analytics.APIKey = "[REDACTED]"
	}
	if cfg.Webhook.Secret != "" {
		cfg.Webhook.Secret = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
