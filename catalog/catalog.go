// Package catalog holds the static reference data of the progression engine:
// level thresholds, achievements, missions, collectible cards and wheel slots.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hanziquest/core"
)

//go:embed default.yaml
var defaultYAML []byte

// Data is the on-disk shape of a catalog file.
type Data struct {
	Levels       []core.LevelThreshold `json:"levels" yaml:"levels"`
	Achievements []core.Achievement    `json:"achievements" yaml:"achievements"`
	Missions     []core.Mission        `json:"missions" yaml:"missions"`
	Cards        []core.Card           `json:"cards" yaml:"cards"`
	WheelRewards []core.WheelReward    `json:"wheel_rewards" yaml:"wheel_rewards"`
}

// Catalog is validated, indexed reference data. It is read-only after construction.
type Catalog struct {
	data       Data
	levels     core.LevelTable
	missions   map[string]core.Mission
	cards      map[string]core.Card
	cardPools  map[core.Rarity][]core.Card
	wheelPools map[core.Rarity][]core.WheelReward
}

// New validates d and builds its indexes.
func New(d Data) (*Catalog, error) {
	levels, err := core.NewLevelTable(d.Levels)
	if err != nil {
		return nil, fmt.Errorf("levels: %w", err)
	}
	c := &Catalog{
		data:       d,
		levels:     levels,
		missions:   make(map[string]core.Mission, len(d.Missions)),
		cards:      make(map[string]core.Card, len(d.Cards)),
		cardPools:  map[core.Rarity][]core.Card{},
		wheelPools: map[core.Rarity][]core.WheelReward{},
	}
	var errs []error
	achievements := map[string]struct{}{}
	for _, a := range d.Achievements {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := achievements[a.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate achievement %s", a.ID))
		}
		achievements[a.ID] = struct{}{}
	}
	for _, m := range d.Missions {
		if err := m.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.missions[m.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate mission %s", m.ID))
		}
		c.missions[m.ID] = m
	}
	for _, card := range d.Cards {
		if err := card.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.cards[card.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate card %s", card.ID))
		}
		c.cards[card.ID] = card
		c.cardPools[card.Rarity] = append(c.cardPools[card.Rarity], card)
	}
	wheel := map[string]struct{}{}
	for _, w := range d.WheelRewards {
		if err := w.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := wheel[w.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate wheel reward %s", w.ID))
		}
		wheel[w.ID] = struct{}{}
		c.wheelPools[w.Rarity] = append(c.wheelPools[w.Rarity], w)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a catalog in the given format ("yaml" or "json").
func Parse(b []byte, format string) (*Catalog, error) {
	var d Data
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return New(d)
}

// Load reads a catalog file, choosing the format from its extension.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultYAML, "yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

func (c *Catalog) Levels() core.LevelTable { return c.levels }

func (c *Catalog) Achievements() []core.Achievement {
	return append([]core.Achievement(nil), c.data.Achievements...)
}

// Missions returns missions sorted by cadence then id.
func (c *Catalog) Missions() []core.Mission {
	out := append([]core.Mission(nil), c.data.Missions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cadence != out[j].Cadence {
			return out[i].Cadence < out[j].Cadence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Catalog) Mission(id string) (core.Mission, bool) {
	m, ok := c.missions[id]
	return m, ok
}

// MissionsFor returns the missions counting the given activity.
func (c *Catalog) MissionsFor(kind core.EventKind) []core.Mission {
	var out []core.Mission
	for _, m := range c.data.Missions {
		if m.Activity == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) Card(id string) (core.Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

func (c *Catalog) CardPools() map[core.Rarity][]core.Card { return c.cardPools }

func (c *Catalog) WheelPools() map[core.Rarity][]core.WheelReward { return c.wheelPools }

// Data returns the raw reference data.
func (c *Catalog) Data() Data { return c.data }
