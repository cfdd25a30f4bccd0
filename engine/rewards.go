package engine

import (
	"context"
	"fmt"

	"hanziquest/core"
)

// SpinResult is the outcome of one wheel spin.
type SpinResult struct {
	Reward    core.WheelReward `json:"reward"`
	Rarity    core.Rarity      `json:"rarity"`
	XPAwarded int64            `json:"xp_awarded"`
	Card      *core.CardReward `json:"card,omitempty"`
	Outcome
}

// SpinWheel consumes one spin and draws a wheel slot. If the draw fails the spin
// is not consumed.
func (e *Engine) SpinWheel(ctx context.Context, learner core.LearnerID) (SpinResult, error) {
	learner, err := core.NormalizeLearnerID(learner)
	if err != nil {
		return SpinResult{}, err
	}
	var res SpinResult
	u, err := e.update(ctx, learner, func(tx Tx, u *unit) error {
		res = SpinResult{}
		spins, err := tx.AdjustSpins(ctx, -1)
		if err != nil {
			return err
		}
		u.progress.Spins = spins

		rarity, err := e.selector.DrawRarity(core.SourceWheelSpin)
		if err != nil {
			return err
		}
		reward, _, err := core.Pick(e.selector, e.catalog.WheelPools(), rarity)
		if err != nil {
			return err
		}
		res.Reward, res.Rarity = reward, rarity

		switch reward.Kind {
		case core.WheelXPBonus:
			meta := map[string]any{"reward_id": reward.ID, "rarity": string(reward.Rarity)}
			if err := u.append(ctx, tx, core.KindWheelReward, reward.Amount, meta); err != nil {
				return err
			}
			res.XPAwarded = reward.Amount
		case core.WheelCard:
			card, err := e.drawCardOfRarity(ctx, tx, u, reward.Rarity, string(core.SourceWheelSpin))
			if err != nil {
				return err
			}
			res.Card = &card
			res.XPAwarded = card.XPAwarded
		case core.WheelBonusSpin:
			spins, err := tx.AdjustSpins(ctx, int(reward.Amount))
			if err != nil {
				return err
			}
			u.progress.Spins = spins
		}
		if reward.Kind != core.WheelCard {
			u.events = append(u.events, core.NewRewardGranted(u.learner, core.SourceWheelSpin, reward.Rarity, reward.ID, u.now))
		}
		return nil
	})
	if err != nil {
		return SpinResult{}, err
	}
	res.Outcome = u.outcome()
	return res, nil
}

// PackRequest asks for a card pack drawn with a source's weights.
type PackRequest struct {
	LearnerID core.LearnerID
	Source    string
	PackSize  int
}

// PackResult lists the cards drawn in order.
type PackResult struct {
	Source core.Source       `json:"source"`
	Cards  []core.CardReward `json:"cards"`
	Outcome
}

// OpenCardPack draws PackSize cards using the weights of the requested source.
func (e *Engine) OpenCardPack(ctx context.Context, req PackRequest) (PackResult, error) {
	learner, err := core.NormalizeLearnerID(req.LearnerID)
	if err != nil {
		return PackResult{}, err
	}
	src, err := core.ParseSource(req.Source)
	if err != nil {
		return PackResult{}, err
	}
	if req.PackSize < 1 || req.PackSize > e.maxPackSize {
		return PackResult{}, fmt.Errorf("%w: %d not in [1, %d]", core.ErrInvalidPackSize, req.PackSize, e.maxPackSize)
	}
	res := PackResult{Source: src}
	u, err := e.update(ctx, learner, func(tx Tx, u *unit) error {
		res.Cards = make([]core.CardReward, 0, req.PackSize)
		for i := 0; i < req.PackSize; i++ {
			card, err := e.drawCard(ctx, tx, u, src)
			if err != nil {
				return err
			}
			res.Cards = append(res.Cards, card)
		}
		return nil
	})
	if err != nil {
		return PackResult{}, err
	}
	res.Outcome = u.outcome()
	return res, nil
}
