package core

import (
	"errors"
	"fmt"
	"sort"
)

// LevelThreshold is the minimum cumulative XP needed to hold a level.
type LevelThreshold struct {
	Level int   `json:"level" yaml:"level"`
	MinXP int64 `json:"min_xp" yaml:"min_xp"`
}

// LevelTable is a validated threshold table sorted by level.
type LevelTable struct {
	thresholds []LevelThreshold
}

// NewLevelTable sorts and validates thresholds. Level 1 must start at 0 XP and
// both columns must be strictly increasing.
func NewLevelTable(thresholds []LevelThreshold) (LevelTable, error) {
	if len(thresholds) == 0 {
		return LevelTable{}, errors.New("level table is empty")
	}
	ts := append([]LevelThreshold(nil), thresholds...)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Level < ts[j].Level })
	if ts[0].Level != 1 || ts[0].MinXP != 0 {
		return LevelTable{}, errors.New("level 1 must have a threshold of 0 xp")
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].Level <= ts[i-1].Level {
			return LevelTable{}, fmt.Errorf("duplicate level %d", ts[i].Level)
		}
		if ts[i].MinXP <= ts[i-1].MinXP {
			return LevelTable{}, fmt.Errorf("threshold for level %d must exceed level %d", ts[i].Level, ts[i-1].Level)
		}
	}
	return LevelTable{thresholds: ts}, nil
}

// MustLevelTable panics on an invalid table. Intended for static tables.
func MustLevelTable(thresholds []LevelThreshold) LevelTable {
	t, err := NewLevelTable(thresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the highest level whose threshold is <= totalXP.
func (t LevelTable) Resolve(totalXP int64) int {
	if len(t.thresholds) == 0 || totalXP <= 0 {
		return 1
	}
	// first index whose threshold exceeds totalXP
	i := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i].MinXP > totalXP })
	return t.thresholds[i-1].Level
}

// Next returns the threshold of the level after level, if any.
func (t LevelTable) Next(level int) (LevelThreshold, bool) {
	for _, th := range t.thresholds {
		if th.Level > level {
			return th, true
		}
	}
	return LevelThreshold{}, false
}

// Thresholds returns a copy of the table.
func (t LevelTable) Thresholds() []LevelThreshold {
	return append([]LevelThreshold(nil), t.thresholds...)
}

// LevelChange compares the levels of two totals and reports the final new level when it rose.
// Multi-level jumps report only the final level.
func (t LevelTable) LevelChange(oldTotal, newTotal int64) (int, bool) {
	oldLevel, newLevel := t.Resolve(oldTotal), t.Resolve(newTotal)
	return newLevel, newLevel > oldLevel
}
