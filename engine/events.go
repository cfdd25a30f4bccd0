package engine

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"hanziquest/core"
)

// EventRequest is one learning activity submitted for a learner.
type EventRequest struct {
	LearnerID core.LearnerID
	Context   core.EventContext
	// OccurredAt defaults to now. Its calendar day in Timezone drives streaks and mission windows.
	OccurredAt time.Time
	Timezone   string
}

// EventResult describes what recording an event did.
type EventResult struct {
	Kind core.EventKind `json:"event_kind"`
	// XPAwarded is the price of the event itself.
	XPAwarded int64 `json:"xp_awarded"`
	// MilestoneXP is the streak milestone reached by a daily login, if any.
	MilestoneXP       int64              `json:"milestone_xp,omitempty"`
	StreakUpdated     *core.StreakUpdate `json:"streak_updated,omitempty"`
	Cards             []core.CardReward  `json:"cards,omitempty"`
	CompletedMissions []string           `json:"completed_missions,omitempty"`
	SpinsGranted      int                `json:"spins_granted,omitempty"`
	Outcome
}

// RecordEvent prices an activity, appends it to the ledger and applies its side
// effects (streak, card pack, mission progress, achievements, level) atomically.
func (e *Engine) RecordEvent(ctx context.Context, req EventRequest) (EventResult, error) {
	learner, err := core.NormalizeLearnerID(req.LearnerID)
	if err != nil {
		return EventResult{}, err
	}
	if req.Context == nil {
		return EventResult{}, fmt.Errorf("%w: event payload is required", core.ErrValidation)
	}
	if !req.Context.Kind().Public() {
		return EventResult{}, fmt.Errorf("%w: %q", core.ErrUnknownEventKind, req.Context.Kind())
	}
	if err := req.Context.Validate(); err != nil {
		return EventResult{}, err
	}
	loc, err := e.location(req.Timezone)
	if err != nil {
		return EventResult{}, err
	}
	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = e.now()
	}
	day := civil.DateOf(occurred.In(loc))

	var (
		cardID string
		pack   int
	)
	switch c := req.Context.(type) {
	case core.CardCollected:
		if _, ok := e.catalog.Card(c.CardID); !ok {
			return EventResult{}, fmt.Errorf("%w: %q", core.ErrUnknownCard, c.CardID)
		}
		cardID = c.CardID
	case core.BossWin:
		pack = c.PackSize
		if pack == 0 {
			pack = 1
		}
		if pack > e.maxPackSize {
			return EventResult{}, fmt.Errorf("%w: %d exceeds %d", core.ErrInvalidPackSize, pack, e.maxPackSize)
		}
	}

	var res EventResult
	u, err := e.update(ctx, learner, func(tx Tx, u *unit) error {
		res = EventResult{Kind: req.Context.Kind()}
		switch c := req.Context.(type) {
		case core.DailyLogin:
			skip, err := e.recordLogin(ctx, tx, u, day, &res)
			if err != nil || skip {
				return err
			}
		case core.CardCollected:
			card, _ := e.catalog.Card(cardID)
			reward, err := e.grantCard(ctx, tx, u, card, string(core.KindCardCollected), true)
			if err != nil {
				return err
			}
			res.XPAwarded = reward.XPAwarded
			res.Cards = []core.CardReward{reward}
		case core.BossWin:
			xp, err := core.Price(c)
			if err != nil {
				return err
			}
			if err := u.append(ctx, tx, core.KindBossWin, xp, core.MetadataOf(c)); err != nil {
				return err
			}
			res.XPAwarded = xp
			for i := 0; i < pack; i++ {
				reward, err := e.drawCard(ctx, tx, u, core.SourceBossWin)
				if err != nil {
					return err
				}
				res.Cards = append(res.Cards, reward)
			}
		default:
			xp, err := core.Price(c)
			if err != nil {
				return err
			}
			if err := u.append(ctx, tx, c.Kind(), xp, core.MetadataOf(c)); err != nil {
				return err
			}
			res.XPAwarded = xp
		}
		done, err := e.advanceMissions(ctx, tx, u, req.Context.Kind(), day)
		if err != nil {
			return err
		}
		res.CompletedMissions = done
		return nil
	})
	if err != nil {
		return EventResult{}, err
	}
	res.SpinsGranted += u.progress.Level - u.startLevel
	res.Outcome = u.outcome()
	e.log.Debug("event recorded",
		zap.String("learner_id", string(learner)),
		zap.String("kind", string(res.Kind)),
		zap.Int64("xp", res.XPAwarded),
		zap.Int64("total_xp", res.NewTotalXP))
	return res, nil
}

// recordLogin touches the streak. A second login on the same day changes
// nothing and reports skip.
func (e *Engine) recordLogin(ctx context.Context, tx Tx, u *unit, day civil.Date, res *EventResult) (bool, error) {
	next, upd, err := core.TouchStreak(u.progress.Streak(), day)
	if err != nil {
		return false, err
	}
	res.StreakUpdated = &upd
	if upd.SameDay {
		return true, nil
	}
	u.progress = u.progress.WithStreak(next)
	u.events = append(u.events, core.NewStreakUpdated(u.learner, upd, u.now))

	meta := map[string]any{"activity_date": day.String()}
	if err := u.append(ctx, tx, core.KindDailyLogin, core.DailyLoginXP, meta); err != nil {
		return false, err
	}
	res.XPAwarded = core.DailyLoginXP

	spins, err := tx.AdjustSpins(ctx, 1)
	if err != nil {
		return false, err
	}
	u.progress.Spins = spins
	res.SpinsGranted = 1

	if xp := core.StreakMilestoneXP(next.Current); xp > 0 {
		meta := map[string]any{"streak": next.Current}
		if err := u.append(ctx, tx, core.KindStreakMilestone, xp, meta); err != nil {
			return false, err
		}
		res.MilestoneXP = xp
	}
	return false, nil
}

// advanceMissions counts the activity toward every mission that tracks it.
// Windows that have passed are reset on the way.
func (e *Engine) advanceMissions(ctx context.Context, tx Tx, u *unit, kind core.EventKind, day civil.Date) ([]string, error) {
	missions := e.catalog.MissionsFor(kind)
	if len(missions) == 0 {
		return nil, nil
	}
	stored, err := tx.MissionProgress(ctx)
	if err != nil {
		return nil, err
	}
	var done []string
	for _, m := range missions {
		if stored[m.ID].Behind(m, day) {
			// backdated activity cannot reopen a window that has been replaced
			e.log.Debug("activity predates mission window",
				zap.String("learner_id", string(u.learner)),
				zap.String("mission_id", m.ID),
				zap.String("day", day.String()))
			continue
		}
		cur := stored[m.ID].Current(m, u.learner, day)
		next, completed := cur.Advance(m, 1, u.now)
		if next == cur {
			continue
		}
		if err := tx.SaveMissionProgress(ctx, next); err != nil {
			return nil, err
		}
		if completed {
			done = append(done, m.ID)
			u.events = append(u.events, core.NewMissionCompleted(u.learner, m.ID, u.now))
		}
	}
	return done, nil
}
