// Package analytics aggregates learner engagement from engine events: active
// learners per day, week and month, XP earned by activity, level ups,
// achievement unlocks, mission claims and reward rarities.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"hanziquest/core"
)

type learnerSet map[core.LearnerID]struct{}

func (s learnerSet) add(id core.LearnerID) { s[id] = struct{}{} }

// Metrics counts engagement by calendar day in a fixed location. It is safe
// for concurrent use and its OnEvent matches engine subscription handlers.
type Metrics struct {
	mu  sync.RWMutex
	loc *time.Location

	activeByDay   map[string]learnerSet
	activeByWeek  map[string]learnerSet
	activeByMonth map[string]learnerSet

	xpByDay  map[string]int64
	xpByKind map[core.EventKind]int64

	levelUpsByDay map[string]int64
	levelReached  map[int]int64

	achievementsByDay map[string]int64
	achievementsByID  map[string]int64

	missionsClaimedByDay map[string]int64
	missionsByID         map[string]int64

	rewardsByDay    map[string]map[core.Rarity]int64
	rewardsByRarity map[core.Rarity]int64

	streaksBroken int64
	longestStreak int
}

// NewMetrics buckets events by day in loc; nil means UTC.
func NewMetrics(loc *time.Location) *Metrics {
	if loc == nil {
		loc = time.UTC
	}
	return &Metrics{
		loc:                  loc,
		activeByDay:          make(map[string]learnerSet),
		activeByWeek:         make(map[string]learnerSet),
		activeByMonth:        make(map[string]learnerSet),
		xpByDay:              make(map[string]int64),
		xpByKind:             make(map[core.EventKind]int64),
		levelUpsByDay:        make(map[string]int64),
		levelReached:         make(map[int]int64),
		achievementsByDay:    make(map[string]int64),
		achievementsByID:     make(map[string]int64),
		missionsClaimedByDay: make(map[string]int64),
		missionsByID:         make(map[string]int64),
		rewardsByDay:         make(map[string]map[core.Rarity]int64),
		rewardsByRarity:      make(map[core.Rarity]int64),
	}
}

func (m *Metrics) OnEvent(_ context.Context, e core.Event) {
	day, week, month := m.keys(e.Time)

	m.mu.Lock()
	defer m.mu.Unlock()

	// only ledger writes count as activity; reads never publish events
	if e.Type == core.EventXPAwarded {
		m.markActive(e.LearnerID, day, week, month)
	}

	switch e.Type {
	case core.EventXPAwarded:
		if e.Delta > 0 {
			m.xpByDay[day] += e.Delta
			m.xpByKind[e.Kind] += e.Delta
		}
	case core.EventLevelUp:
		m.levelUpsByDay[day]++
		m.levelReached[e.Level]++
	case core.EventAchievementUnlocked:
		m.achievementsByDay[day]++
		m.achievementsByID[e.Achievement]++
	case core.EventMissionClaimed:
		m.missionsClaimedByDay[day]++
		m.missionsByID[e.Mission]++
	case core.EventRewardGranted:
		if m.rewardsByDay[day] == nil {
			m.rewardsByDay[day] = make(map[core.Rarity]int64)
		}
		m.rewardsByDay[day][e.Rarity]++
		m.rewardsByRarity[e.Rarity]++
	case core.EventStreakUpdated:
		if broken, _ := e.Metadata["broken"].(bool); broken {
			m.streaksBroken++
		}
		if e.Streak > m.longestStreak {
			m.longestStreak = e.Streak
		}
	}
}

func (m *Metrics) markActive(id core.LearnerID, day, week, month string) {
	for key, sets := range map[string]map[string]learnerSet{day: m.activeByDay, week: m.activeByWeek, month: m.activeByMonth} {
		if sets[key] == nil {
			sets[key] = make(learnerSet)
		}
		sets[key].add(id)
	}
}

func (m *Metrics) keys(t time.Time) (day, week, month string) {
	local := t.In(m.loc)
	year, w := local.ISOWeek()
	return civil.DateOf(local).String(), fmt.Sprintf("%d-W%02d", year, w), local.Format("2006-01")
}

// DailyActiveLearners counts learners who earned XP on day (YYYY-MM-DD).
func (m *Metrics) DailyActiveLearners(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByDay[day])
}

// WeeklyActiveLearners takes an ISO week key such as 2025-W07.
func (m *Metrics) WeeklyActiveLearners(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByWeek[week])
}

// MonthlyActiveLearners takes a month key such as 2025-02.
func (m *Metrics) MonthlyActiveLearners(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByMonth[month])
}

func (m *Metrics) XPAwardedOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.xpByDay[day]
}

func (m *Metrics) XPByKind() map[core.EventKind]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.xpByKind)
}

func (m *Metrics) AchievementUnlocks(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.achievementsByID[id]
}

func (m *Metrics) MissionClaims(id string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.missionsByID[id]
}

func (m *Metrics) RewardsByRarity() map[core.Rarity]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.rewardsByRarity)
}

// day returns the per-day counters for one day key.
func (m *Metrics) day(key string) (active int, xp, levelUps, achievements, missions int64, rewards map[core.Rarity]int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeByDay[key]), m.xpByDay[key], m.levelUpsByDay[key],
		m.achievementsByDay[key], m.missionsClaimedByDay[key], copyMap(m.rewardsByDay[key])
}

// Counter is one named count in a ranking.
type Counter struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Summary is a point-in-time overview of all counters.
type Summary struct {
	GeneratedAt      time.Time                `json:"generated_at"`
	Today            string                   `json:"today"`
	DailyActive      int                      `json:"daily_active_learners"`
	WeeklyActive     int                      `json:"weekly_active_learners"`
	MonthlyActive    int                      `json:"monthly_active_learners"`
	XPToday          int64                    `json:"xp_today"`
	XPByKind         map[core.EventKind]int64 `json:"xp_by_kind"`
	LevelReached     map[int]int64            `json:"level_reached"`
	TopAchievements  []Counter                `json:"top_achievements"`
	TopMissions      []Counter                `json:"top_missions"`
	RewardsByRarity  map[core.Rarity]int64    `json:"rewards_by_rarity"`
	StreaksBroken    int64                    `json:"streaks_broken"`
	LongestStreakYet int                      `json:"longest_streak_seen"`
}

// Summary reports counters as of now, with rankings cut to limit entries.
func (m *Metrics) Summary(now time.Time, limit int) Summary {
	day, week, month := m.keys(now)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Summary{
		GeneratedAt:      now,
		Today:            day,
		DailyActive:      len(m.activeByDay[day]),
		WeeklyActive:     len(m.activeByWeek[week]),
		MonthlyActive:    len(m.activeByMonth[month]),
		XPToday:          m.xpByDay[day],
		XPByKind:         copyMap(m.xpByKind),
		LevelReached:     copyMap(m.levelReached),
		TopAchievements:  top(m.achievementsByID, limit),
		TopMissions:      top(m.missionsByID, limit),
		RewardsByRarity:  copyMap(m.rewardsByRarity),
		StreaksBroken:    m.streaksBroken,
		LongestStreakYet: m.longestStreak,
	}
}

func top(counts map[string]int64, limit int) []Counter {
	out := make([]Counter, 0, len(counts))
	for name, n := range counts {
		out = append(out, Counter{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
