package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"hanziquest/catalog"
	"hanziquest/core"
)

const (
	DefaultMaxPackSize  = 10
	DefaultRecentEvents = 50
)

// Engine is the progression and reward engine. Every operation is one unit of
// work against the Store; domain events are published only after it commits.
type Engine struct {
	store       Store
	catalog     *catalog.Catalog
	bus         *EventBus
	selector    *core.Selector
	cache       ProgressCache
	log         *zap.Logger
	now         func() time.Time
	loc         *time.Location
	maxPackSize int
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand pins the randomness used by reward draws.
func WithRand(r core.RandSource) Option {
	return func(e *Engine) { e.selector = core.NewSelector(r) }
}

func WithCache(c ProgressCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithTimezone sets the location that defines calendar days when a request
// does not carry its own timezone.
func WithTimezone(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithMaxPackSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPackSize = n
		}
	}
}

// New wires storage, reference data and the event bus into an Engine.
func New(store Store, cat *catalog.Catalog, bus *EventBus, opts ...Option) *Engine {
	if store == nil || cat == nil || bus == nil {
		panic("engine.New requires non-nil store, catalog, and bus")
	}
	e := &Engine{
		store:       store,
		catalog:     cat,
		bus:         bus,
		log:         zap.NewNop(),
		now:         time.Now,
		loc:         time.UTC,
		maxPackSize: DefaultMaxPackSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = core.NewSelector(nil)
	}
	return e
}

// Subscribe convenience method.
func (e *Engine) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return e.bus.Subscribe(typ, handler)
}

func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func (e *Engine) MaxPackSize() int { return e.maxPackSize }

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

func (e *Engine) Close() { e.bus.Close() }

// location resolves a request timezone, falling back to the engine default.
func (e *Engine) location(tz string) (*time.Location, error) {
	if tz == "" {
		return e.loc, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// todayIn is the current calendar day in tz, or in the engine default when tz is empty.
func (e *Engine) todayIn(tz string) (civil.Date, error) {
	loc, err := e.location(tz)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(e.now().In(loc)), nil
}

// update runs fn as one unit of work and publishes its events after commit.
func (e *Engine) update(ctx context.Context, learner core.LearnerID, fn func(Tx, *unit) error) (*unit, error) {
	var u *unit
	err := e.store.Update(ctx, learner, func(tx Tx) error {
		// a retried transaction starts from scratch
		u = newUnit(learner, e.now().UTC())
		p, err := tx.EnsureProgress(ctx)
		if err != nil {
			return err
		}
		u.progress = p
		u.startLevel = p.Level
		if err := fn(tx, u); err != nil {
			return err
		}
		return e.finalize(ctx, tx, u)
	})
	if err != nil {
		return nil, storageErr(err)
	}
	e.afterCommit(ctx, u)
	return u, nil
}

func (e *Engine) view(ctx context.Context, learner core.LearnerID, fn func(Tx) error) error {
	if err := e.store.View(ctx, learner, fn); err != nil {
		return storageErr(err)
	}
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, u *unit) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, u.learner); err != nil {
			e.log.Warn("progress cache invalidation failed", zap.String("learner_id", string(u.learner)), zap.Error(err))
		}
	}
	for _, ev := range u.events {
		e.bus.Publish(ctx, ev)
	}
	if u.levelUp {
		e.log.Info("level up",
			zap.String("learner_id", string(u.learner)),
			zap.Int("level", u.progress.Level),
			zap.Int64("total_xp", u.progress.TotalXP))
	}
}

// finalize evaluates achievements once, then resolves the level from the final
// total. Achievement bonuses never trigger another evaluation.
func (e *Engine) finalize(ctx context.Context, tx Tx, u *unit) error {
	levels := e.catalog.Levels()
	u.progress.Level = max(levels.Resolve(u.progress.TotalXP), u.startLevel)

	if err := e.evaluateAchievements(ctx, tx, u); err != nil {
		return err
	}

	newLevel := levels.Resolve(u.progress.TotalXP)
	if newLevel > u.startLevel {
		spins, err := tx.AdjustSpins(ctx, newLevel-u.startLevel)
		if err != nil {
			return err
		}
		u.progress.Spins = spins
		u.levelUp = true
		u.events = append(u.events, core.NewLevelUp(u.learner, newLevel, u.progress.TotalXP, u.now))
	}
	u.progress.Level = max(newLevel, u.startLevel)
	u.progress.UpdatedAt = u.now
	return tx.SaveProgress(ctx, u.progress)
}

func (e *Engine) evaluateAchievements(ctx context.Context, tx Tx, u *unit) error {
	all := e.catalog.Achievements()
	if len(all) == 0 {
		return nil
	}
	unlocks, err := tx.Unlocks(ctx)
	if err != nil {
		return err
	}
	unlocked := make(map[string]bool, len(unlocks))
	for _, ul := range unlocks {
		unlocked[ul.AchievementID] = true
	}
	snap := core.ProgressSnapshot{Progress: u.progress}
	if kinds := core.CountedActivities(all); len(kinds) > 0 {
		if snap.ActivityCounts, err = tx.CountEvents(ctx, kinds); err != nil {
			return err
		}
	}
	if core.NeedsCardCount(all) {
		if snap.CardsOwned, err = tx.DistinctCards(ctx); err != nil {
			return err
		}
	}
	for _, a := range core.Pending(all, unlocked, snap) {
		inserted, err := tx.InsertUnlock(ctx, core.Unlock{LearnerID: u.learner, AchievementID: a.ID, UnlockedAt: u.now})
		if err != nil {
			return err
		}
		if !inserted {
			continue
		}
		u.unlocked = append(u.unlocked, a)
		u.events = append(u.events, core.NewAchievementUnlocked(u.learner, a, u.now))
		if a.BonusXP > 0 {
			if err := u.append(ctx, tx, core.KindAchievementBonus, a.BonusXP, map[string]any{"achievement_id": a.ID}); err != nil {
				return err
			}
			u.bonusXP += a.BonusXP
		}
	}
	return nil
}

// grantCard adds a card to the collection. Only the first copy is worth XP.
func (e *Engine) grantCard(ctx context.Context, tx Tx, u *unit, card core.Card, source string, ledger bool) (core.CardReward, error) {
	owned, err := tx.OwnsCard(ctx, card.ID)
	if err != nil {
		return core.CardReward{}, err
	}
	if err := tx.AddCard(ctx, core.CardEntry{
		ID:         newID(),
		LearnerID:  u.learner,
		CardID:     card.ID,
		Source:     source,
		ObtainedAt: u.now,
	}); err != nil {
		return core.CardReward{}, err
	}
	reward := core.CardReward{Card: card, Rarity: card.Rarity, New: !owned}
	if !owned {
		reward.XPAwarded = core.CardXP(card.Rarity)
	}
	if ledger || reward.New {
		meta := map[string]any{"card_id": card.ID, "rarity": string(card.Rarity), "source": source}
		if err := u.append(ctx, tx, core.KindCardCollected, reward.XPAwarded, meta); err != nil {
			return core.CardReward{}, err
		}
	}
	return reward, nil
}

// drawCard runs the rarity selector for src and picks a card of that rarity.
func (e *Engine) drawCard(ctx context.Context, tx Tx, u *unit, src core.Source) (core.CardReward, error) {
	rarity, err := e.selector.DrawRarity(src)
	if err != nil {
		return core.CardReward{}, err
	}
	return e.drawCardOfRarity(ctx, tx, u, rarity, string(src))
}

func (e *Engine) drawCardOfRarity(ctx context.Context, tx Tx, u *unit, rarity core.Rarity, source string) (core.CardReward, error) {
	card, _, err := core.Pick(e.selector, e.catalog.CardPools(), rarity)
	if err != nil {
		return core.CardReward{}, err
	}
	reward, err := e.grantCard(ctx, tx, u, card, source, false)
	if err != nil {
		return core.CardReward{}, err
	}
	reward.Rarity = rarity
	u.events = append(u.events, core.NewRewardGranted(u.learner, core.Source(source), card.Rarity, card.ID, u.now))
	return reward, nil
}

func storageErr(err error) error {
	if err == nil || core.IsDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrStorage, err)
}
