package core

import (
	"fmt"
	"sort"
)

// RequirementKind selects which progress figure an achievement tests.
type RequirementKind string

const (
	RequireTotalXP       RequirementKind = "total_xp"
	RequireStreak        RequirementKind = "streak"
	RequireLongestStreak RequirementKind = "longest_streak"
	RequireLevel         RequirementKind = "level"
	RequireActivityCount RequirementKind = "activity_count"
	RequireCardsOwned    RequirementKind = "cards_owned"
)

// Requirement is "figure of Kind is at least Value". Activity names the counted
// event kind for activity_count requirements.
type Requirement struct {
	Kind     RequirementKind `json:"kind" yaml:"kind"`
	Value    int64           `json:"value" yaml:"value"`
	Activity EventKind       `json:"activity,omitempty" yaml:"activity,omitempty"`
}

func (r Requirement) Validate() error {
	switch r.Kind {
	case RequireTotalXP, RequireStreak, RequireLongestStreak, RequireLevel, RequireCardsOwned:
		if r.Activity != "" {
			return fmt.Errorf("requirement %s does not take an activity", r.Kind)
		}
	case RequireActivityCount:
		if !r.Activity.Known() {
			return fmt.Errorf("activity_count requires a known activity, got %q", r.Activity)
		}
	default:
		return fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
	if r.Value <= 0 {
		return fmt.Errorf("requirement %s must have a positive value", r.Kind)
	}
	return nil
}

// Achievement is a permanent one-time unlock.
type Achievement struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Category    string      `json:"category" yaml:"category"`
	Tier        Tier        `json:"tier" yaml:"tier"`
	Requirement Requirement `json:"requirement" yaml:"requirement"`
	BonusXP     int64       `json:"bonus_xp" yaml:"bonus_xp"`
}

func (a Achievement) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("achievement id is required")
	}
	if a.Tier.Rank() == 0 {
		return fmt.Errorf("achievement %s: unknown tier %q", a.ID, a.Tier)
	}
	if a.BonusXP < 0 {
		return fmt.Errorf("achievement %s: bonus_xp cannot be negative", a.ID)
	}
	if err := a.Requirement.Validate(); err != nil {
		return fmt.Errorf("achievement %s: %w", a.ID, err)
	}
	return nil
}

// ProgressSnapshot is what requirements are tested against.
type ProgressSnapshot struct {
	Progress       LearnerProgress
	ActivityCounts map[EventKind]int64
	CardsOwned     int64
}

// SatisfiedBy reports whether the snapshot meets the requirement.
func (r Requirement) SatisfiedBy(s ProgressSnapshot) bool {
	var have int64
	switch r.Kind {
	case RequireTotalXP:
		have = s.Progress.TotalXP
	case RequireStreak:
		have = int64(s.Progress.CurrentStreak)
	case RequireLongestStreak:
		have = int64(s.Progress.LongestStreak)
	case RequireLevel:
		have = int64(s.Progress.Level)
	case RequireActivityCount:
		have = s.ActivityCounts[r.Activity]
	case RequireCardsOwned:
		have = s.CardsOwned
	default:
		return false
	}
	return have >= r.Value
}

// CountedActivities lists the event kinds whose counts the achievements need.
func CountedActivities(all []Achievement) []EventKind {
	seen := map[EventKind]struct{}{}
	var out []EventKind
	for _, a := range all {
		if a.Requirement.Kind != RequireActivityCount {
			continue
		}
		if _, ok := seen[a.Requirement.Activity]; ok {
			continue
		}
		seen[a.Requirement.Activity] = struct{}{}
		out = append(out, a.Requirement.Activity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NeedsCardCount reports whether any achievement tests the collection size.
func NeedsCardCount(all []Achievement) bool {
	for _, a := range all {
		if a.Requirement.Kind == RequireCardsOwned {
			return true
		}
	}
	return false
}

// Pending returns achievements that are satisfied by s and not yet unlocked,
// ordered by tier then id so unlock order is stable.
func Pending(all []Achievement, unlocked map[string]bool, s ProgressSnapshot) []Achievement {
	var out []Achievement
	for _, a := range all {
		if unlocked[a.ID] {
			continue
		}
		if a.Requirement.SatisfiedBy(s) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier.Rank() != out[j].Tier.Rank() {
			return out[i].Tier.Rank() < out[j].Tier.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out
}
