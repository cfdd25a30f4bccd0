package core

import "fmt"

const (
	QuizBaseXP     int64 = 50
	LessonXP       int64 = 100
	DailyLoginXP   int64 = 20
	VocabularyXP   int64 = 15
	BossBaseXP     int64 = 100
	BossPerLevelXP int64 = 50

	MaxBossDifficulty = 10
)

// QuizXP prices a finished quiz: base 50 plus the highest qualifying accuracy bonus.
func QuizXP(score, total int) int64 {
	if total <= 0 || score <= 0 {
		return QuizBaseXP
	}
	// integer comparison of score/total against each percentage
	pct := func(p int) bool { return score*100 >= p*total }
	switch {
	case pct(95):
		return QuizBaseXP + 50
	case pct(90):
		return QuizBaseXP + 30
	case pct(80):
		return QuizBaseXP + 20
	case pct(70):
		return QuizBaseXP + 10
	default:
		return QuizBaseXP
	}
}

// PronunciationXP scales with the accuracy percentage (0..100).
func PronunciationXP(accuracy float64) int64 {
	switch {
	case accuracy >= 95:
		return 50
	case accuracy >= 90:
		return 40
	case accuracy >= 80:
		return 30
	case accuracy >= 70:
		return 25
	default:
		return 15
	}
}

// BossWinXP is 100 + 50 × difficulty.
func BossWinXP(difficulty int) int64 {
	return BossBaseXP + BossPerLevelXP*int64(difficulty)
}

// MissionXP is the flat reward for completing a mission of the given cadence.
func MissionXP(c Cadence) int64 {
	switch c {
	case CadenceDaily:
		return 50
	case CadenceWeekly:
		return 200
	case CadenceNewbie:
		return 150
	case CadenceSpecial:
		return 300
	}
	return 0
}

// StreakMilestoneXP applies the highest matching milestone: 100 days, then 30, then 7.
func StreakMilestoneXP(streak int) int64 {
	switch {
	case streak <= 0:
		return 0
	case streak%100 == 0:
		return 1000
	case streak%30 == 0:
		return 500
	case streak%7 == 0:
		return 100
	default:
		return 0
	}
}

// CardXP is awarded the first time a learner obtains a card.
func CardXP(r Rarity) int64 {
	switch r {
	case RarityLegendary:
		return 100
	case RarityEpic:
		return 50
	case RarityRare:
		return 25
	case RarityCommon:
		return 10
	}
	return 0
}

// Price returns the XP a validated context is worth. Card collection depends on
// ownership and is priced by the caller with CardXP.
func Price(ec EventContext) (int64, error) {
	if err := ec.Validate(); err != nil {
		return 0, err
	}
	switch c := ec.(type) {
	case QuizComplete:
		return QuizXP(*c.Score, *c.Total), nil
	case LessonComplete:
		return LessonXP, nil
	case BossWin:
		return BossWinXP(*c.Difficulty), nil
	case MissionComplete:
		return MissionXP(c.Cadence), nil
	case DailyLogin:
		return DailyLoginXP, nil
	case StreakMilestone:
		return StreakMilestoneXP(*c.Streak), nil
	case PronunciationPractice:
		return PronunciationXP(*c.Accuracy), nil
	case CardCollected:
		return 0, nil
	case VocabularyMastered:
		return VocabularyXP, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownEventKind, ec.Kind())
}
