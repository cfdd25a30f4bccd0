package core

import (
	"time"

	"cloud.google.com/go/civil"
)

// LearnerProgress is the per-learner progression row.
// Level always equals the level table's resolution of TotalXP once a write commits.
type LearnerProgress struct {
	LearnerID     LearnerID   `json:"learner_id"`
	TotalXP       int64       `json:"total_xp"`
	Level         int         `json:"level"`
	CurrentStreak int         `json:"current_streak"`
	LongestStreak int         `json:"longest_streak"`
	LastActivity  *civil.Date `json:"last_activity_date,omitempty"`
	Spins         int         `json:"spins"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewLearnerProgress returns the zero state a learner starts from.
func NewLearnerProgress(id LearnerID, now time.Time) LearnerProgress {
	return LearnerProgress{LearnerID: id, Level: 1, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a copy that shares no pointers with p.
func (p LearnerProgress) Clone() LearnerProgress {
	cp := p
	if p.LastActivity != nil {
		d := *p.LastActivity
		cp.LastActivity = &d
	}
	return cp
}

// Streak extracts the streak tracker's view of the row.
func (p LearnerProgress) Streak() StreakState {
	return StreakState{Current: p.CurrentStreak, Longest: p.LongestStreak, Last: p.LastActivity}
}

// WithStreak applies a streak tracker result to the row.
func (p LearnerProgress) WithStreak(s StreakState) LearnerProgress {
	p.CurrentStreak = s.Current
	p.LongestStreak = s.Longest
	p.LastActivity = s.Last
	return p
}

// XPEvent is an immutable ledger entry.
type XPEvent struct {
	ID        string         `json:"id"`
	LearnerID LearnerID      `json:"learner_id"`
	Kind      EventKind      `json:"event_kind"`
	XP        int64          `json:"xp_awarded"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Unlock records that a learner holds an achievement. At most one exists per pair.
type Unlock struct {
	LearnerID     LearnerID `json:"learner_id"`
	AchievementID string    `json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// CardEntry is one card obtained by a learner. Duplicates are allowed.
type CardEntry struct {
	ID         string    `json:"id"`
	LearnerID  LearnerID `json:"learner_id"`
	CardID     string    `json:"card_id"`
	Source     string    `json:"source"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// UniqueCards counts distinct card ids.
func UniqueCards(entries []CardEntry) int {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.CardID] = struct{}{}
	}
	return len(seen)
}
