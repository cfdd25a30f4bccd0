package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// LearnerID uniquely identifies a learner in the progression domain.
type LearnerID string

// EventKind enumerates the learning activities the XP ledger knows how to price.
type EventKind string

const (
	KindQuizComplete          EventKind = "quiz_complete"
	KindLessonComplete        EventKind = "lesson_complete"
	KindBossWin               EventKind = "boss_win"
	KindMissionComplete       EventKind = "mission_complete"
	KindDailyLogin            EventKind = "daily_login"
	KindStreakMilestone       EventKind = "streak_milestone"
	KindPronunciationPractice EventKind = "pronunciation_practice"
	KindCardCollected         EventKind = "card_collected"
	KindVocabularyMastered    EventKind = "vocabulary_mastered"

	// Ledger-only kinds. They are written by the engine and never accepted from callers.
	KindAchievementBonus EventKind = "achievement_bonus"
	KindWheelReward      EventKind = "wheel_reward"
)

var publicKinds = map[EventKind]struct{}{
	KindQuizComplete:          {},
	KindLessonComplete:        {},
	KindBossWin:               {},
	KindMissionComplete:       {},
	KindDailyLogin:            {},
	KindStreakMilestone:       {},
	KindPronunciationPractice: {},
	KindCardCollected:         {},
	KindVocabularyMastered:    {},
}

// Public reports whether callers may submit this kind to the ledger.
func (k EventKind) Public() bool {
	_, ok := publicKinds[k]
	return ok
}

// Known reports whether the ledger can hold entries of this kind.
func (k EventKind) Known() bool {
	return k.Public() || k == KindAchievementBonus || k == KindWheelReward
}

// ParseEventKind validates a caller-supplied event kind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.TrimSpace(strings.ToLower(s)))
	if !k.Public() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
	return k, nil
}

// Rarity is a reward tier used to weight draws.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rarities lists tiers in draw order.
var Rarities = [...]Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

// Index returns the draw-order position of r, or -1.
func (r Rarity) Index() int {
	for i, x := range Rarities {
		if x == r {
			return i
		}
	}
	return -1
}

func (r Rarity) Valid() bool { return r.Index() >= 0 }

// Tier orders achievements: bronze < silver < gold < platinum.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Rank returns 1..4 for known tiers and 0 otherwise.
func (t Tier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierPlatinum:
		return 4
	}
	return 0
}

// Cadence controls how often a mission window resets.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceNewbie  Cadence = "newbie"
	CadenceSpecial Cadence = "special"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceNewbie, CadenceSpecial:
		return true
	}
	return false
}

// Resets reports whether the cadence has rolling windows.
func (c Cadence) Resets() bool { return c == CadenceDaily || c == CadenceWeekly }

// Source names the activity that triggered a reward draw.
type Source string

const (
	SourceQuizReward      Source = "quiz_reward"
	SourceBossWin         Source = "boss_win"
	SourceWheelSpin       Source = "wheel_spin"
	SourceDailyLogin      Source = "daily_login"
	SourceMissionComplete Source = "mission_complete"
	SourceLevelUp         Source = "level_up"
)

// ParseSource validates a reward trigger source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := sourceWeights[src]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return src, nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeLearnerID trims and lowercases learner identifiers.
func NormalizeLearnerID(id LearnerID) (LearnerID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", fmt.Errorf("%w: empty learner id", ErrValidation)
	}
	if len(s) > 128 {
		return "", fmt.Errorf("%w: learner id too long", ErrValidation)
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' || r == '@' {
			continue
		}
		return "", fmt.Errorf("%w: invalid learner id", ErrValidation)
	}
	return LearnerID(strings.ToLower(s)), nil
}
