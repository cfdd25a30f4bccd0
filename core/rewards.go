package core

import "fmt"

// Card is a collectible flashcard (a hanzi with its Vietnamese gloss).
type Card struct {
	ID      string `json:"id" yaml:"id"`
	Hanzi   string `json:"hanzi" yaml:"hanzi"`
	Reading string `json:"reading,omitempty" yaml:"reading,omitempty"`
	Meaning string `json:"meaning,omitempty" yaml:"meaning,omitempty"`
	Track   string `json:"track,omitempty" yaml:"track,omitempty"`
	Rarity  Rarity `json:"rarity" yaml:"rarity"`
}

func (c Card) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("card id is required")
	}
	if !c.Rarity.Valid() {
		return fmt.Errorf("card %s: unknown rarity %q", c.ID, c.Rarity)
	}
	return nil
}

// WheelRewardKind is what a wheel slot pays out.
type WheelRewardKind string

const (
	WheelXPBonus   WheelRewardKind = "xp_bonus"
	WheelCard      WheelRewardKind = "card"
	WheelBonusSpin WheelRewardKind = "bonus_spin"
)

// WheelReward is one slot of the lucky wheel.
type WheelReward struct {
	ID     string          `json:"id" yaml:"id"`
	Label  string          `json:"label" yaml:"label"`
	Kind   WheelRewardKind `json:"kind" yaml:"kind"`
	Rarity Rarity          `json:"rarity" yaml:"rarity"`
	Amount int64           `json:"amount,omitempty" yaml:"amount,omitempty"`
}

func (w WheelReward) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("wheel reward id is required")
	}
	if !w.Rarity.Valid() {
		return fmt.Errorf("wheel reward %s: unknown rarity %q", w.ID, w.Rarity)
	}
	switch w.Kind {
	case WheelXPBonus, WheelBonusSpin:
		if w.Amount <= 0 {
			return fmt.Errorf("wheel reward %s: amount must be positive", w.ID)
		}
	case WheelCard:
	default:
		return fmt.Errorf("wheel reward %s: unknown kind %q", w.ID, w.Kind)
	}
	return nil
}

// CardReward is a card handed to a learner by a draw.
type CardReward struct {
	Card      Card   `json:"card"`
	Rarity    Rarity `json:"rarity"`
	New       bool   `json:"new"`
	XPAwarded int64  `json:"xp_awarded"`
}
