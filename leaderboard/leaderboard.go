package leaderboard

import (
	"context"

	"go.uber.org/zap"

	"hanziquest/core"
)

// Entry is one learner's position by total XP. Rank starts at 1.
type Entry struct {
	Learner core.LearnerID `json:"learner_id"`
	TotalXP int64          `json:"total_xp"`
	Rank    int            `json:"rank"`
}

// Board ranks learners by total XP. Record never lowers a stored total, so
// events delivered out of order cannot move a learner down.
type Board interface {
	Record(ctx context.Context, learner core.LearnerID, totalXP int64) error
	Remove(ctx context.Context, learner core.LearnerID) error
	Top(ctx context.Context, n int) ([]Entry, error)
	Get(ctx context.Context, learner core.LearnerID) (Entry, bool, error)
}

// Subscriber is the part of the engine a board listens to.
type Subscriber interface {
	Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func()
}

// Follow keeps b in sync with xp_awarded events. It returns the unsubscribe func.
func Follow(s Subscriber, b Board, log *zap.Logger) func() {
	if log == nil {
		log = zap.NewNop()
	}
	return s.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) {
		if err := b.Record(ctx, e.LearnerID, e.Total); err != nil {
			log.Warn("leaderboard update failed",
				zap.String("learner", string(e.LearnerID)),
				zap.Int64("total_xp", e.Total),
				zap.Error(err))
		}
	})
}
