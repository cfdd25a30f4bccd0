package core

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqRand replays fixed values.
type seqRand struct {
	floats []float64
	ints   []int
}

func (s *seqRand) Float64() float64 {
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *seqRand) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0] % n
	s.ints = s.ints[1:]
	return v
}

func TestSourceWeightsExact(t *testing.T) {
	want := map[Source]Weights{
		SourceQuizReward:      {70, 25, 4, 1},
		SourceBossWin:         {30, 40, 25, 5},
		SourceWheelSpin:       {50, 35, 12, 3},
		SourceDailyLogin:      {80, 18, 2, 0},
		SourceMissionComplete: {60, 30, 9, 1},
		SourceLevelUp:         {40, 35, 20, 5},
	}
	for src, w := range want {
		got, err := WeightsFor(src)
		require.NoError(t, err)
		assert.Equal(t, w, got, src)
		assert.NoError(t, got.Validate())
	}
	_, err := WeightsFor("lottery")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRarityForDrawBoundaries(t *testing.T) {
	w := Weights{80, 18, 2, 0}
	cases := []struct {
		draw float64
		want Rarity
	}{
		{0, RarityCommon},
		{79.999, RarityCommon},
		{80, RarityCommon},
		{80.0001, RarityRare},
		{98, RarityRare},
		{98.5, RarityEpic},
		{99.999, RarityEpic},
	}
	for _, c := range cases {
		got, err := RarityForDraw(w, c.draw)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "draw=%v", c.draw)
	}
	_, err := RarityForDraw(w, 100)
	assert.Error(t, err)
	_, err = RarityForDraw(w, -1)
	assert.Error(t, err)
}

func TestRarityForDrawSkipsZeroWeights(t *testing.T) {
	got, err := RarityForDraw(Weights{0, 10, 0, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, RarityRare, got)

	_, err = RarityForDraw(Weights{0, 0, 0, 0}, 0)
	assert.Error(t, err)
	_, err = RarityForDraw(Weights{-1, 5, 0, 0}, 0)
	assert.Error(t, err)
}

func TestDailyLoginNeverLegendary(t *testing.T) {
	floats := make([]float64, 100)
	for i := range floats {
		floats[i] = float64(i) / 100
	}
	floats[99] = 0.99999
	sel := NewSelector(&seqRand{floats: floats})
	for range floats {
		r, err := sel.DrawRarity(SourceDailyLogin)
		require.NoError(t, err)
		assert.NotEqual(t, RarityLegendary, r)
	}

	seeded := NewSelector(rand.New(rand.NewPCG(1, 2)))
	for i := 0; i < 1000; i++ {
		r, err := seeded.DrawRarity(SourceDailyLogin)
		require.NoError(t, err)
		require.NotEqual(t, RarityLegendary, r)
	}
}

func TestPickFallsBackToCommon(t *testing.T) {
	sel := NewSelector(&seqRand{ints: []int{1}})
	pools := map[Rarity][]string{RarityCommon: {"a", "b"}}
	item, used, err := Pick(sel, pools, RarityLegendary)
	require.NoError(t, err)
	assert.Equal(t, "b", item)
	assert.Equal(t, RarityCommon, used)

	_, _, err = Pick(sel, map[Rarity][]string{RarityRare: {"x"}}, RarityEpic)
	assert.ErrorIs(t, err, ErrNoInventory)
}
