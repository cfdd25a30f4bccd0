package core

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// StreakState is the continuity counter pair plus the last activity day.
type StreakState struct {
	Current int
	Longest int
	Last    *civil.Date
}

// StreakUpdate is what TouchStreak reports back to callers.
type StreakUpdate struct {
	CurrentStreak  int  `json:"current_streak"`
	LongestStreak  int  `json:"longest_streak"`
	StreakExtended bool `json:"streak_extended"`
	StreakBroken   bool `json:"streak_broken"`
	SameDay        bool `json:"same_day,omitempty"`
}

// TouchStreak folds an activity day into the streak.
//
// Same day is a no-op, the next day extends, a larger gap restarts at 1 and marks the
// streak broken (except for the very first activity). A day before the stored one is rejected.
func TouchStreak(s StreakState, day civil.Date) (StreakState, StreakUpdate, error) {
	if !day.IsValid() {
		return s, StreakUpdate{}, fmt.Errorf("%w: invalid activity date", ErrValidation)
	}
	if s.Last == nil {
		next := StreakState{Current: 1, Longest: max(s.Longest, 1), Last: &day}
		return next, StreakUpdate{CurrentStreak: next.Current, LongestStreak: next.Longest}, nil
	}

	gap := day.DaysSince(*s.Last)
	switch {
	case gap < 0:
		return s, StreakUpdate{}, fmt.Errorf("%w: %s before %s", ErrOutOfOrderActivity, day, *s.Last)
	case gap == 0:
		return s, StreakUpdate{CurrentStreak: s.Current, LongestStreak: s.Longest, SameDay: true}, nil
	case gap == 1:
		next := StreakState{Current: s.Current + 1, Longest: s.Longest, Last: &day}
		if next.Current > next.Longest {
			next.Longest = next.Current
		}
		return next, StreakUpdate{CurrentStreak: next.Current, LongestStreak: next.Longest, StreakExtended: true}, nil
	default:
		next := StreakState{Current: 1, Longest: max(s.Longest, 1), Last: &day}
		return next, StreakUpdate{CurrentStreak: 1, LongestStreak: next.Longest, StreakBroken: true}, nil
	}
}
