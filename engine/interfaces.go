package engine

import (
	"context"

	"hanziquest/core"
)

// Store runs units of work against the learner tables. Update must be atomic:
// when fn returns an error nothing it wrote is observable afterwards. Updates for
// the same learner are serialized; different learners do not block each other.
type Store interface {
	Update(ctx context.Context, learner core.LearnerID, fn func(Tx) error) error
	View(ctx context.Context, learner core.LearnerID, fn func(Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is one learner's slice of the store inside a unit of work.
type Tx interface {
	// EnsureProgress returns the learner row, creating the zero state on first use.
	// Within Update the row stays locked until the unit of work ends.
	EnsureProgress(ctx context.Context) (core.LearnerProgress, error)
	Progress(ctx context.Context) (core.LearnerProgress, bool, error)
	// AppendEvent writes a ledger entry and atomically adds its XP to the total.
	AppendEvent(ctx context.Context, ev core.XPEvent) (newTotal int64, err error)
	// SaveProgress stores level and streak fields. Total XP and spins are only
	// changed through AppendEvent and AdjustSpins.
	SaveProgress(ctx context.Context, p core.LearnerProgress) error
	// AdjustSpins adds delta to the spin balance and returns core.ErrNoSpins
	// instead of going negative.
	AdjustSpins(ctx context.Context, delta int) (int, error)

	Unlocks(ctx context.Context) ([]core.Unlock, error)
	// InsertUnlock reports false when the pair already exists.
	InsertUnlock(ctx context.Context, u core.Unlock) (bool, error)
	CountEvents(ctx context.Context, kinds []core.EventKind) (map[core.EventKind]int64, error)
	RecentEvents(ctx context.Context, limit int) ([]core.XPEvent, error)

	MissionProgress(ctx context.Context) (map[string]core.MissionProgress, error)
	SaveMissionProgress(ctx context.Context, p core.MissionProgress) error

	Cards(ctx context.Context) ([]core.CardEntry, error)
	OwnsCard(ctx context.Context, cardID string) (bool, error)
	AddCard(ctx context.Context, e core.CardEntry) error
	DistinctCards(ctx context.Context) (int64, error)
}

// ProgressCache is an optional read-through cache for progress snapshots.
// The engine invalidates an entry after every committed write for that learner.
// Invalidate must also advance the learner's generation, and Fill must drop p
// when the generation has moved past gen, which the engine reads before loading
// from the store.
type ProgressCache interface {
	Get(ctx context.Context, learner core.LearnerID) (core.LearnerProgress, bool, error)
	Generation(ctx context.Context, learner core.LearnerID) (uint64, error)
	Fill(ctx context.Context, p core.LearnerProgress, gen uint64) error
	Invalidate(ctx context.Context, learner core.LearnerID) error
}
