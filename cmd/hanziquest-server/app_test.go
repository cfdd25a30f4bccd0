package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"hanziquest/config"
)

func TestSetupStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cases := []struct {
		name      string
		mutate    func(*config.Config)
		wantClose bool
	}{
		{name: "memory", mutate: func(c *config.Config) { c.Storage.Adapter = "memory" }},
		{name: "file", mutate: func(c *config.Config) {
			c.Storage.Adapter = "file"
			c.Storage.File.Path = filepath.Join(dir, "progress.json")
		}},
		{name: "gorm sqlite", wantClose: true, mutate: func(c *config.Config) {
			c.Storage.Adapter = "gorm"
			c.Storage.Gorm.DSN = filepath.Join(dir, "hq.db")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(cfg)
			store, closer, err := setupStorage(ctx, cfg)
			require.NoError(t, err)
			require.NotNil(t, store)
			assert.NoError(t, store.Ping(ctx))
			assert.Equal(t, tc.wantClose, closer != nil)
			if closer != nil {
				assert.NoError(t, closer())
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = "tape"
	_, _, err := setupStorage(ctx, cfg)
	assert.ErrorContains(t, err, "unknown storage adapter")
}

func TestSetupLogging(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Attributes = map[string]string{"service": "hanziquest"}
	log, err := setupLogging(cfg)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestBuildAppServesAPI(t *testing.T) {
	t.Setenv("HANZIQUEST_ENGINE_DISPATCH_MODE", "sync")
	t.Setenv("HANZIQUEST_LOGGING_LEVEL", "error")

	app, cleanup, err := BuildApp(context.Background())
	require.NoError(t, err)
	defer cleanup()

	srv := httptest.NewServer(app.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/learners/minh/events", "application/json",
		strings.NewReader(`{"event_kind":"lesson_complete"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Entries []struct {
			Learner string `json:"learner_id"`
			TotalXP int64  `json:"total_xp"`
		} `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "minh", body.Entries[0].Learner)
	// lesson plus the first_lesson bonus
	assert.Equal(t, int64(110), body.Entries[0].TotalXP)

	require.NotNil(t, app.Analytics)
	stats, err := http.Get(srv.URL + "/api/analytics/summary")
	require.NoError(t, err)
	defer stats.Body.Close()
	var summary struct {
		DailyActive int   `json:"daily_active_learners"`
		XPToday     int64 `json:"xp_today"`
	}
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&summary))
	assert.Equal(t, 1, summary.DailyActive)
	assert.Equal(t, int64(110), summary.XPToday)
}

func TestBuildAppWithoutAnalytics(t *testing.T) {
	t.Setenv("HANZIQUEST_ANALYTICS_ENABLED", "false")
	t.Setenv("HANZIQUEST_LOGGING_LEVEL", "error")

	app, cleanup, err := BuildApp(context.Background())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, app.Analytics)

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("HANZIQUEST_ENGINE_DISPATCH_MODE", "sync")
	t.Setenv("HANZIQUEST_LOGGING_LEVEL", "error")
	t.Setenv("HANZIQUEST_REDIS_ADDR", mr.Addr())
	t.Setenv("HANZIQUEST_CACHE_ENABLED", "true")
	t.Setenv("HANZIQUEST_LEADERBOARD_BACKEND", "redis")

	app, cleanup, err := BuildApp(context.Background())
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/learners/hoa/events",
		strings.NewReader(`{"event_kind":"quiz_complete","metadata":{"score":10,"total":10}}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	score, err := mr.ZScore("hanziquest:leaderboard:xp", "hoa")
	require.NoError(t, err)
	assert.Equal(t, float64(100), score)

	rec = httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/learners/hoa/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists("hanziquest:progress:hoa"), "progress read should populate the cache")
}

func TestProvideConfigFromProfile(t *testing.T) {
	t.Setenv("HANZIQUEST_PROFILE", "testing")
	cfg, err := provideConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.EnvTesting, cfg.Environment)
	assert.Equal(t, "sync", cfg.Engine.DispatchMode)
}
