package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"hanziquest/core"
)

// ProgressView is a learner's progress plus where the next level starts.
type ProgressView struct {
	core.LearnerProgress
	// Started is false for a learner with no recorded activity.
	Started     bool  `json:"started"`
	NextLevel   int   `json:"next_level,omitempty"`
	NextLevelXP int64 `json:"next_level_xp,omitempty"`
}

// GetProgress returns the learner's progress, or the zero state if they have none yet.
func (e *Engine) GetProgress(ctx context.Context, learner core.LearnerID) (ProgressView, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return ProgressView{}, err
	}
	var (
		gen      uint64
		fillable bool
	)
	if e.cache != nil {
		p, ok, err := e.cache.Get(ctx, learner)
		if err != nil {
			e.log.Warn("progress cache read failed", zap.String("learner_id", string(learner)), zap.Error(err))
		} else if ok {
			return e.progressView(p, true), nil
		}
		if gen, err = e.cache.Generation(ctx, learner); err != nil {
			e.log.Warn("progress cache read failed", zap.String("learner_id", string(learner)), zap.Error(err))
		} else {
			fillable = true
		}
	}
	var (
		p      core.LearnerProgress
		exists bool
	)
	if err := e.view(ctx, learner, func(tx Tx) error {
		var err error
		p, exists, err = tx.Progress(ctx)
		return err
	}); err != nil {
		return ProgressView{}, err
	}
	if !exists {
		return e.progressView(core.NewLearnerProgress(learner, time.Time{}), false), nil
	}
	if fillable {
		if err := e.cache.Fill(ctx, p, gen); err != nil {
			e.log.Warn("progress cache write failed", zap.String("learner_id", string(learner)), zap.Error(err))
		}
	}
	return e.progressView(p, true), nil
}

func (e *Engine) progressView(p core.LearnerProgress, started bool) ProgressView {
	v := ProgressView{LearnerProgress: p, Started: started}
	if next, ok := e.catalog.Levels().Next(p.Level); ok {
		v.NextLevel, v.NextLevelXP = next.Level, next.MinXP
	}
	return v
}

// AchievementStatus is an achievement and whether the learner holds it.
type AchievementStatus struct {
	core.Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// AchievementBoard lists all achievements ordered by tier, unlocked ones carrying their time.
func (e *Engine) AchievementBoard(ctx context.Context, learner core.LearnerID) ([]AchievementStatus, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return nil, err
	}
	var unlocks []core.Unlock
	if err := e.view(ctx, learner, func(tx Tx) error {
		var err error
		unlocks, err = tx.Unlocks(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		at[u.AchievementID] = u.UnlockedAt
	}
	all := e.catalog.Achievements()
	out := make([]AchievementStatus, 0, len(all))
	for _, a := range all {
		st := AchievementStatus{Achievement: a}
		if t, ok := at[a.ID]; ok {
			st.Unlocked = true
			st.UnlockedAt = &t
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier.Rank() < out[j].Tier.Rank() })
	return out, nil
}

// OwnedCard is one distinct card in a collection.
type OwnedCard struct {
	Card            core.Card `json:"card"`
	Copies          int       `json:"copies"`
	FirstObtainedAt time.Time `json:"first_obtained_at"`
	FirstSource     string    `json:"first_source"`
}

// CollectionView summarizes a learner's cards.
type CollectionView struct {
	Unique      int         `json:"unique"`
	TotalCards  int         `json:"total_cards"`
	CatalogSize int         `json:"catalog_size"`
	Cards       []OwnedCard `json:"cards"`
}

// Collection groups the learner's card entries by card id.
func (e *Engine) Collection(ctx context.Context, learner core.LearnerID) (CollectionView, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return CollectionView{}, err
	}
	var entries []core.CardEntry
	if err := e.view(ctx, learner, func(tx Tx) error {
		var err error
		entries, err = tx.Cards(ctx)
		return err
	}); err != nil {
		return CollectionView{}, err
	}
	byID := map[string]*OwnedCard{}
	var order []string
	for _, entry := range entries {
		if oc, ok := byID[entry.CardID]; ok {
			oc.Copies++
			if entry.ObtainedAt.Before(oc.FirstObtainedAt) {
				oc.FirstObtainedAt, oc.FirstSource = entry.ObtainedAt, entry.Source
			}
			continue
		}
		card, ok := e.catalog.Card(entry.CardID)
		if !ok {
			// retired from the catalog; keep the id visible
			card = core.Card{ID: entry.CardID, Rarity: core.RarityCommon}
		}
		byID[entry.CardID] = &OwnedCard{Card: card, Copies: 1, FirstObtainedAt: entry.ObtainedAt, FirstSource: entry.Source}
		order = append(order, entry.CardID)
	}
	view := CollectionView{
		Unique:      len(order),
		TotalCards:  len(entries),
		CatalogSize: len(e.catalog.Data().Cards),
		Cards:       make([]OwnedCard, 0, len(order)),
	}
	for _, id := range order {
		view.Cards = append(view.Cards, *byID[id])
	}
	return view, nil
}

// RecentEvents returns the newest ledger entries first.
func (e *Engine) RecentEvents(ctx context.Context, learner core.LearnerID, limit int) ([]core.XPEvent, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = DefaultRecentEvents
	}
	var out []core.XPEvent
	if err := e.view(ctx, learner, func(tx Tx) error {
		var err error
		out, err = tx.RecentEvents(ctx, limit)
		return err
	}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.XPEvent{}
	}
	return out, nil
}
