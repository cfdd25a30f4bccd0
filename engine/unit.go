package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hanziquest/core"
)

// unit accumulates what one unit of work did so the result and the post-commit
// events can be assembled after the store commits.
type unit struct {
	learner    core.LearnerID
	now        time.Time
	progress   core.LearnerProgress
	startLevel int
	levelUp    bool
	bonusXP    int64
	unlocked   []core.Achievement
	entries    []core.XPEvent
	events     []core.Event
}

func newUnit(learner core.LearnerID, now time.Time) *unit {
	return &unit{learner: learner, now: now}
}

// append writes a ledger entry and folds its XP into the running total.
func (u *unit) append(ctx context.Context, tx Tx, kind core.EventKind, xp int64, meta map[string]any) error {
	ev := core.XPEvent{
		ID:        newID(),
		LearnerID: u.learner,
		Kind:      kind,
		XP:        xp,
		Metadata:  meta,
		CreatedAt: u.now,
	}
	total, err := tx.AppendEvent(ctx, ev)
	if err != nil {
		return err
	}
	u.progress.TotalXP = total
	u.entries = append(u.entries, ev)
	if xp > 0 {
		u.events = append(u.events, core.NewXPAwarded(u.learner, kind, xp, total, u.now))
	}
	return nil
}

func (u *unit) outcome() Outcome {
	out := Outcome{
		NewTotalXP:                u.progress.TotalXP,
		LevelUp:                   u.levelUp,
		BonusXP:                   u.bonusXP,
		SpinsAvailable:            u.progress.Spins,
		NewlyUnlockedAchievements: u.unlocked,
	}
	if out.NewlyUnlockedAchievements == nil {
		out.NewlyUnlockedAchievements = []core.Achievement{}
	}
	if u.levelUp {
		out.NewLevel = u.progress.Level
	}
	return out
}

func newID() string { return uuid.NewString() }

// Outcome is the part of every write result that describes the learner afterwards.
type Outcome struct {
	NewTotalXP int64 `json:"new_total_xp"`
	LevelUp    bool  `json:"level_up"`
	NewLevel   int   `json:"new_level,omitempty"`
	// BonusXP is XP granted by achievements unlocked during the operation.
	BonusXP                   int64              `json:"bonus_xp,omitempty"`
	SpinsAvailable            int                `json:"spins_available"`
	NewlyUnlockedAchievements []core.Achievement `json:"newly_unlocked_achievements"`
}
