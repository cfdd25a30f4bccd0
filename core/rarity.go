package core

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Weights holds relative draw weights in Rarities order.
type Weights [len(Rarities)]int

// Total sums all weights.
func (w Weights) Total() int {
	total := 0
	for _, v := range w {
		total += v
	}
	return total
}

// Validate checks that weights are non-negative with at least one positive entry.
func (w Weights) Validate() error {
	for i, v := range w {
		if v < 0 {
			return fmt.Errorf("negative weight for %s", Rarities[i])
		}
	}
	if w.Total() <= 0 {
		return fmt.Errorf("weights must contain a positive entry")
	}
	return nil
}

var sourceWeights = map[Source]Weights{
	SourceQuizReward:      {70, 25, 4, 1},
	SourceBossWin:         {30, 40, 25, 5},
	SourceWheelSpin:       {50, 35, 12, 3},
	SourceDailyLogin:      {80, 18, 2, 0},
	SourceMissionComplete: {60, 30, 9, 1},
	SourceLevelUp:         {40, 35, 20, 5},
}

// WeightsFor returns the fixed weight vector of a source.
func WeightsFor(src Source) (Weights, error) {
	w, ok := sourceWeights[src]
	if !ok {
		return Weights{}, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	return w, nil
}

// RarityForDraw walks tiers in order, accumulating weight, and returns the first
// tier whose cumulative weight meets or exceeds draw. Zero-weight tiers are never chosen.
func RarityForDraw(w Weights, draw float64) (Rarity, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	total := float64(w.Total())
	if draw < 0 || draw >= total {
		return "", fmt.Errorf("draw %v outside [0, %v)", draw, total)
	}
	cumulative := 0.0
	last := RarityCommon
	for i, weight := range w {
		if weight == 0 {
			continue
		}
		cumulative += float64(weight)
		last = Rarities[i]
		if cumulative >= draw {
			return Rarities[i], nil
		}
	}
	return last, nil
}

// RandSource is the randomness the selector needs. *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// lockedRand makes a RandSource safe for concurrent requests.
type lockedRand struct {
	mu  sync.Mutex
	src RandSource
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntN(n)
}

// NewSecureRand returns a PCG generator seeded from crypto/rand, safe for concurrent use.
func NewSecureRand() RandSource {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &lockedRand{src: rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:])))}
}

// Selector draws rarities and concrete rewards.
type Selector struct {
	rng RandSource
}

// NewSelector builds a selector. A nil source falls back to NewSecureRand.
func NewSelector(rng RandSource) *Selector {
	if rng == nil {
		rng = NewSecureRand()
	}
	return &Selector{rng: rng}
}

// DrawRarity draws a uniform value in [0, totalWeight) and maps it through the source's weights.
func (s *Selector) DrawRarity(src Source) (Rarity, error) {
	w, err := WeightsFor(src)
	if err != nil {
		return "", err
	}
	draw := s.rng.Float64() * float64(w.Total())
	return RarityForDraw(w, draw)
}

// Pick draws uniformly from the pool tagged with r, falling back to the common pool.
// It returns the rarity actually used.
func Pick[T any](s *Selector, pools map[Rarity][]T, r Rarity) (T, Rarity, error) {
	var zero T
	for _, tier := range []Rarity{r, RarityCommon} {
		items := pools[tier]
		if len(items) == 0 {
			continue
		}
		return items[s.rng.IntN(len(items))], tier, nil
	}
	return zero, "", fmt.Errorf("%w: no %s or %s items", ErrNoInventory, r, RarityCommon)
}
