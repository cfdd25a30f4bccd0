package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingSkipsUnlockedAndOrdersByTier(t *testing.T) {
	all := []Achievement{
		{ID: "xp-gold", Tier: TierGold, Requirement: Requirement{Kind: RequireTotalXP, Value: 100}},
		{ID: "xp-bronze", Tier: TierBronze, Requirement: Requirement{Kind: RequireTotalXP, Value: 10}},
		{ID: "streak", Tier: TierSilver, Requirement: Requirement{Kind: RequireStreak, Value: 7}},
		{ID: "quizzes", Tier: TierBronze, Requirement: Requirement{Kind: RequireActivityCount, Activity: KindQuizComplete, Value: 2}},
		{ID: "cards", Tier: TierBronze, Requirement: Requirement{Kind: RequireCardsOwned, Value: 1}},
	}
	snap := ProgressSnapshot{
		Progress:       LearnerProgress{TotalXP: 150, CurrentStreak: 3},
		ActivityCounts: map[EventKind]int64{KindQuizComplete: 2},
	}
	got := Pending(all, map[string]bool{"xp-bronze": true}, snap)
	require.Len(t, got, 2)
	assert.Equal(t, "quizzes", got[0].ID)
	assert.Equal(t, "xp-gold", got[1].ID)
}

func TestCountedActivities(t *testing.T) {
	all := []Achievement{
		{Requirement: Requirement{Kind: RequireActivityCount, Activity: KindQuizComplete}},
		{Requirement: Requirement{Kind: RequireActivityCount, Activity: KindBossWin}},
		{Requirement: Requirement{Kind: RequireActivityCount, Activity: KindQuizComplete}},
		{Requirement: Requirement{Kind: RequireTotalXP}},
	}
	assert.Equal(t, []EventKind{KindBossWin, KindQuizComplete}, CountedActivities(all))
	assert.False(t, NeedsCardCount(all))
}

func TestAchievementValidate(t *testing.T) {
	a := Achievement{ID: "a", Tier: TierBronze, Requirement: Requirement{Kind: RequireLevel, Value: 5}, BonusXP: 10}
	assert.NoError(t, a.Validate())

	a.Tier = "wood"
	assert.Error(t, a.Validate())

	a.Tier = TierBronze
	a.Requirement = Requirement{Kind: RequireActivityCount, Value: 1}
	assert.Error(t, a.Validate(), "activity_count needs an activity")

	a.Requirement = Requirement{Kind: RequireTotalXP, Value: 0}
	assert.Error(t, a.Validate())
}
