package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"hanziquest/core"
)

// Period is the width of an aggregation window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// AggregatedData summarizes one window of engagement.
type AggregatedData struct {
	Period               Period                `json:"period"`
	Key                  string                `json:"key"`
	Start                civil.Date            `json:"start"`
	End                  civil.Date            `json:"end"`
	ActiveLearners       int                   `json:"active_learners"`
	XPAwarded            int64                 `json:"xp_awarded"`
	LevelUps             int64                 `json:"level_ups"`
	AchievementsUnlocked int64                 `json:"achievements_unlocked"`
	MissionsClaimed      int64                 `json:"missions_claimed"`
	RewardsByRarity      map[core.Rarity]int64 `json:"rewards_by_rarity"`
}

// Aggregator rolls Metrics day counters up into daily, weekly and monthly windows.
type Aggregator struct {
	metrics *Metrics
	log     *zap.Logger

	mu      sync.RWMutex
	results map[Period]map[string]AggregatedData
}

func NewAggregator(m *Metrics, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		metrics: m,
		log:     log,
		results: map[Period]map[string]AggregatedData{
			PeriodDaily:   {},
			PeriodWeekly:  {},
			PeriodMonthly: {},
		},
	}
}

// Aggregate computes the windows containing now and stores them.
func (a *Aggregator) Aggregate(now time.Time) []AggregatedData {
	local := now.In(a.metrics.loc)
	today := civil.DateOf(local)
	dayKey, weekKey, monthKey := a.metrics.keys(now)

	// ISO weeks start on Monday
	weekStart := today.AddDays(-((int(local.Weekday()) + 6) % 7))
	monthStart := civil.Date{Year: today.Year, Month: today.Month, Day: 1}
	monthEnd := civil.DateOf(monthStart.In(a.metrics.loc).AddDate(0, 1, -1))

	out := []AggregatedData{
		a.window(PeriodDaily, dayKey, today, today, a.metrics.DailyActiveLearners(dayKey)),
		a.window(PeriodWeekly, weekKey, weekStart, weekStart.AddDays(6), a.metrics.WeeklyActiveLearners(weekKey)),
		a.window(PeriodMonthly, monthKey, monthStart, monthEnd, a.metrics.MonthlyActiveLearners(monthKey)),
	}

	a.mu.Lock()
	for _, d := range out {
		a.results[d.Period][d.Key] = d
	}
	a.mu.Unlock()
	return out
}

// window sums the day counters in [start, end]; active learners come from the
// period's own set since a learner active on two days counts once.
func (a *Aggregator) window(p Period, key string, start, end civil.Date, active int) AggregatedData {
	d := AggregatedData{
		Period:          p,
		Key:             key,
		Start:           start,
		End:             end,
		ActiveLearners:  active,
		RewardsByRarity: make(map[core.Rarity]int64),
	}
	for day := start; !day.After(end); day = day.AddDays(1) {
		_, xp, levels, achievements, missions, rewards := a.metrics.day(day.String())
		d.XPAwarded += xp
		d.LevelUps += levels
		d.AchievementsUnlocked += achievements
		d.MissionsClaimed += missions
		for r, n := range rewards {
			d.RewardsByRarity[r] += n
		}
	}
	return d
}

// Get returns a stored window.
func (a *Aggregator) Get(p Period, key string) (AggregatedData, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.results[p][key]
	return d, ok
}

// All returns every stored window for p ordered by key.
func (a *Aggregator) All(p Period) []AggregatedData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AggregatedData, 0, len(a.results[p]))
	for _, d := range a.results[p] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start aggregates on every tick until ctx is done, handing results to onTick.
func (a *Aggregator) Start(ctx context.Context, interval time.Duration, now func() time.Time, onTick func([]AggregatedData)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data := a.Aggregate(now())
			a.log.Debug("analytics aggregated", zap.Int("windows", len(data)))
			if onTick != nil {
				onTick(data)
			}
		}
	}
}
