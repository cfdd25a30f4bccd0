package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"hanziquest/core"
)

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	sections := []struct {
		name string
		err  error
	}{
		{"server", c.Server.Validate()},
		{"storage", c.Storage.Validate()},
		{"leaderboard", c.Leaderboard.Validate()},
		{"logging", c.Logging.Validate()},
		{"security", c.Security.Validate()},
		{"webhook", c.Webhook.Validate()},
		{"engine", c.Engine.Validate()},
		{"analytics", c.Analytics.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s config: %w", s.name, s.err))
		}
	}

	if c.Cache.Enabled || c.Leaderboard.Backend == "redis" {
		if err := c.Redis.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("redis config: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.PathPrefix != "" && !strings.HasPrefix(s.PathPrefix, "/") {
		errs = append(errs, "path_prefix must start with /")
	}

	for name, d := range map[string]time.Duration{
		"read_timeout":        s.ReadTimeout,
		"write_timeout":       s.WriteTimeout,
		"idle_timeout":        s.IdleTimeout,
		"read_header_timeout": s.ReadHeaderTimeout,
		"shutdown_timeout":    s.ShutdownTimeout,
	} {
		if d <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	validAdapters := []string{"memory", "file", "sql", "gorm"}
	switch s.Adapter {
	case "memory":
		return nil
	case "file":
		if err := s.File.Validate(); err != nil {
			return fmt.Errorf("file config: %w", err)
		}
	case "sql":
		if err := s.SQL.Validate(); err != nil {
			return fmt.Errorf("sql config: %w", err)
		}
	case "gorm":
		if err := s.Gorm.Validate(); err != nil {
			return fmt.Errorf("gorm config: %w", err)
		}
	default:
		return fmt.Errorf("adapter must be one of: %s", strings.Join(validAdapters, ", "))
	}
	return nil
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

func (l *LeaderboardConfig) Validate() error {
	var errs []string
	if l.Backend != "memory" && l.Backend != "redis" {
		errs = append(errs, "backend must be one of: memory, redis")
	}
	if l.DefaultLimit <= 0 {
		errs = append(errs, "default_limit must be positive")
	}
	if l.MaxLimit < l.DefaultLimit {
		errs = append(errs, "max_limit must be >= default_limit")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	if validLevels := []string{"debug", "info", "warn", "error"}; !slices.Contains(validLevels, l.Level) {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}
	if validFormats := []string{"json", "text"}; !slices.Contains(validFormats, l.Format) {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}
	if validOutputs := []string{"stdout", "stderr"}; !slices.Contains(validOutputs, l.Output) {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security configuration
func (s *SecurityConfig) Validate() error {
	var errs []string

	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be positive")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be positive")
		}
		if s.RateLimit.CleanupInterval <= 0 {
			errs = append(errs, "rate_limit.cleanup_interval must be positive")
		}
	}
	for i, key := range s.APIKeys {
		if len(key) < 16 {
			errs = append(errs, fmt.Sprintf("api_keys[%d] must be at least 16 characters", i))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	if len(w.Endpoints) == 0 {
		return nil
	}
	var errs []string
	for i, ep := range w.Endpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			errs = append(errs, fmt.Sprintf("endpoints[%d] must be an http(s) URL", i))
		}
	}
	for _, name := range w.Events {
		if !slices.Contains(core.EventTypes, core.EventType(name)) {
			errs = append(errs, fmt.Sprintf("unknown event %q", name))
		}
	}
	if w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if w.RatePerSecond < 0 {
		errs = append(errs, "rate_per_second cannot be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	var errs []string
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone: %v", err))
	}
	if e.MaxPackSize <= 0 {
		errs = append(errs, "max_pack_size must be positive")
	}
	switch e.DispatchMode {
	case "sync":
	case "async":
		if e.EventQueueSize <= 0 {
			errs = append(errs, "event_queue_size must be positive")
		}
		if e.EventWorkers <= 0 {
			errs = append(errs, "event_workers must be positive")
		}
	default:
		errs = append(errs, "dispatch_mode must be one of: sync, async")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (a *AnalyticsConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.Interval < time.Second {
		errs = append(errs, "interval must be at least 1s")
	}
	for i, ep := range a.Endpoints {
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			errs = append(errs, fmt.Sprintf("endpoints[%d] must be an http(s) URL", i))
		}
	}
	if len(a.Endpoints) > 0 {
		if a.BatchSize <= 0 {
			errs = append(errs, "batch_size must be positive")
		}
		if a.Timeout <= 0 {
			errs = append(errs, "timeout must be positive")
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
