package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"hanziquest/core"
	"hanziquest/engine"
)

func hcm(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return loc
}

// Wednesday 12 Feb 2025, 10:00 in Ho Chi Minh City.
var wednesday = time.Date(2025, 2, 12, 3, 0, 0, 0, time.UTC)

func TestMetricsBucketsByLocalDay(t *testing.T) {
	m := NewMetrics(hcm(t))
	ctx := context.Background()

	// 20:00 UTC on the 11th is already the 12th in Vietnam
	late := time.Date(2025, 2, 11, 20, 0, 0, 0, time.UTC)
	m.OnEvent(ctx, core.NewXPAwarded("minh", core.KindLessonComplete, 100, 100, late))
	m.OnEvent(ctx, core.NewXPAwarded("minh", core.KindQuizComplete, 100, 200, wednesday))
	m.OnEvent(ctx, core.NewXPAwarded("lan", core.KindDailyLogin, 20, 20, wednesday))

	assert.Equal(t, 2, m.DailyActiveLearners("2025-02-12"))
	assert.Equal(t, 0, m.DailyActiveLearners("2025-02-11"))
	assert.Equal(t, 2, m.WeeklyActiveLearners("2025-W07"))
	assert.Equal(t, 2, m.MonthlyActiveLearners("2025-02"))
	assert.Equal(t, int64(220), m.XPAwardedOn("2025-02-12"))
	assert.Equal(t, map[core.EventKind]int64{
		core.KindLessonComplete: 100,
		core.KindQuizComplete:   100,
		core.KindDailyLogin:     20,
	}, m.XPByKind())
}

func TestMetricsCountsProgressEvents(t *testing.T) {
	m := NewMetrics(hcm(t))
	ctx := context.Background()

	m.OnEvent(ctx, core.NewLevelUp("minh", 2, 120, wednesday))
	m.OnEvent(ctx, core.NewAchievementUnlocked("minh", core.Achievement{ID: "first_lesson", Name: "First Lesson", BonusXP: 10}, wednesday))
	m.OnEvent(ctx, core.NewAchievementUnlocked("lan", core.Achievement{ID: "first_lesson", Name: "First Lesson", BonusXP: 10}, wednesday))
	m.OnEvent(ctx, core.NewMissionClaimed("minh", "daily_login", 20, wednesday))
	m.OnEvent(ctx, core.NewRewardGranted("minh", core.SourceWheelSpin, core.RarityRare, "xp_50", wednesday))
	m.OnEvent(ctx, core.NewRewardGranted("lan", core.SourceQuizReward, core.RarityCommon, "c1", wednesday))
	m.OnEvent(ctx, core.NewStreakUpdated("minh", core.StreakUpdate{CurrentStreak: 1, LongestStreak: 6, StreakBroken: true}, wednesday))
	m.OnEvent(ctx, core.NewStreakUpdated("lan", core.StreakUpdate{CurrentStreak: 4, LongestStreak: 4, StreakExtended: true}, wednesday))

	// none of these count as activity on their own
	assert.Equal(t, 0, m.DailyActiveLearners("2025-02-12"))
	assert.Equal(t, int64(2), m.AchievementUnlocks("first_lesson"))
	assert.Equal(t, int64(1), m.MissionClaims("daily_login"))
	assert.Equal(t, map[core.Rarity]int64{core.RarityRare: 1, core.RarityCommon: 1}, m.RewardsByRarity())

	s := m.Summary(wednesday, 5)
	assert.Equal(t, "2025-02-12", s.Today)
	assert.Equal(t, map[int]int64{2: 1}, s.LevelReached)
	assert.Equal(t, []Counter{{Name: "first_lesson", Count: 2}}, s.TopAchievements)
	assert.Equal(t, []Counter{{Name: "daily_login", Count: 1}}, s.TopMissions)
	assert.Equal(t, int64(1), s.StreaksBroken)
	assert.Equal(t, 4, s.LongestStreakYet)
}

func TestTopOrdersByCountThenName(t *testing.T) {
	got := top(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, []Counter{{"c", 5}, {"a", 2}, {"b", 2}}, got)
	assert.Len(t, top(map[string]int64{"x": 1}, 0), 1)
}

func TestAggregateWindows(t *testing.T) {
	m := NewMetrics(hcm(t))
	ctx := context.Background()
	monday := wednesday.AddDate(0, 0, -2)
	lastMonth := time.Date(2025, 1, 31, 3, 0, 0, 0, time.UTC)

	m.OnEvent(ctx, core.NewXPAwarded("minh", core.KindLessonComplete, 100, 100, lastMonth))
	m.OnEvent(ctx, core.NewXPAwarded("minh", core.KindLessonComplete, 100, 200, monday))
	m.OnEvent(ctx, core.NewXPAwarded("minh", core.KindQuizComplete, 100, 300, wednesday))
	m.OnEvent(ctx, core.NewXPAwarded("lan", core.KindLessonComplete, 100, 100, wednesday))
	m.OnEvent(ctx, core.NewLevelUp("minh", 2, 100, monday))
	m.OnEvent(ctx, core.NewRewardGranted("lan", core.SourceQuizReward, core.RarityEpic, "c9", wednesday))

	a := NewAggregator(m, zap.NewNop())
	out := a.Aggregate(wednesday)
	require.Len(t, out, 3)

	day, ok := a.Get(PeriodDaily, "2025-02-12")
	require.True(t, ok)
	assert.Equal(t, 2, day.ActiveLearners)
	assert.Equal(t, int64(200), day.XPAwarded)
	assert.Zero(t, day.LevelUps)
	assert.Equal(t, int64(1), day.RewardsByRarity[core.RarityEpic])

	week, ok := a.Get(PeriodWeekly, "2025-W07")
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 10}, week.Start)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 16}, week.End)
	assert.Equal(t, 2, week.ActiveLearners)
	assert.Equal(t, int64(300), week.XPAwarded)
	assert.Equal(t, int64(1), week.LevelUps)

	month, ok := a.Get(PeriodMonthly, "2025-02")
	require.True(t, ok)
	assert.Equal(t, civil.Date{Year: 2025, Month: 2, Day: 28}, month.End)
	assert.Equal(t, int64(300), month.XPAwarded)

	a.Aggregate(lastMonth)
	all := a.All(PeriodMonthly)
	require.Len(t, all, 2)
	assert.Equal(t, "2025-01", all[0].Key)
	assert.Equal(t, int64(100), all[0].XPAwarded)
}

func TestHTTPExporterBatches(t *testing.T) {
	var posts atomic.Int32
	var got []AggregatedData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		posts.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e := NewHTTPExporter(srv.URL, "secret", 2, time.Second)
	ctx := context.Background()
	require.NoError(t, e.Export(ctx, AggregatedData{Period: PeriodDaily, Key: "2025-02-12"}))
	assert.Zero(t, posts.Load())
	require.NoError(t, e.Export(ctx, AggregatedData{Period: PeriodWeekly, Key: "2025-W07"}))
	assert.Equal(t, int32(1), posts.Load())
	require.Len(t, got, 2)
	assert.Equal(t, "2025-W07", got[1].Key)

	require.NoError(t, e.Close())
	assert.Equal(t, int32(1), posts.Load(), "empty buffer must not post")
}

func TestHTTPExporterKeepsBatchOnFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewHTTPExporter(srv.URL, "", 1, time.Second)
	err := e.Export(context.Background(), AggregatedData{Key: "2025-02-12"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	fail.Store(false)
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, int32(2), posts.Load())
}

type failingExporter struct{ err error }

func (f failingExporter) Export(context.Context, AggregatedData) error { return f.err }
func (f failingExporter) Flush(context.Context) error                  { return nil }
func (f failingExporter) Close() error                                 { return f.err }

func TestMultiExporterJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	obs, logs := observer.New(zap.InfoLevel)
	m := NewMultiExporter(NewLogExporter(zap.New(obs)), failingExporter{err: boom})

	err := m.Export(context.Background(), AggregatedData{Period: PeriodDaily, Key: "2025-02-12", ActiveLearners: 3})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, logs.FilterMessage("analytics window").Len())
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["active_learners"])
	assert.NoError(t, m.Flush(context.Background()))
	assert.ErrorIs(t, m.Close(), boom)
}

type recordingExporter struct {
	exported chan AggregatedData
	closed   atomic.Bool
}

func (r *recordingExporter) Export(_ context.Context, d AggregatedData) error {
	select {
	case r.exported <- d:
	default:
	}
	return nil
}
func (r *recordingExporter) Flush(context.Context) error { return nil }
func (r *recordingExporter) Close() error                { r.closed.Store(true); return nil }

func TestServiceFollowsBus(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	defer bus.Close()

	rec := &recordingExporter{exported: make(chan AggregatedData, 16)}
	svc := NewService(bus, hcm(t),
		WithExporter(rec),
		WithInterval(10*time.Millisecond),
		WithClock(func() time.Time { return wednesday }))

	ctx := context.Background()
	bus.Publish(ctx, core.NewXPAwarded("minh", core.KindLessonComplete, 100, 100, wednesday))
	bus.Publish(ctx, core.NewMissionClaimed("minh", "daily_login", 20, wednesday))

	s := svc.Summary(10)
	assert.Equal(t, 1, s.DailyActive)
	assert.Equal(t, int64(100), s.XPToday)
	assert.Equal(t, []Counter{{Name: "daily_login", Count: 1}}, s.TopMissions)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		svc.Run(runCtx)
		close(done)
	}()

	select {
	case d := <-rec.exported:
		assert.NotEmpty(t, d.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("no window exported")
	}
	cancel()
	<-done
	assert.True(t, rec.closed.Load())

	svc.Close()
	bus.Publish(ctx, core.NewXPAwarded("lan", core.KindLessonComplete, 100, 100, wednesday))
	assert.Equal(t, 1, svc.Summary(10).DailyActive)
}
