package multiworld

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"tinyhabits.city/internal/protocol"
	"tinyhabits.city/internal/sim/world/placement"
)

type Config struct {
	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

// WorldSpec describes one settlement variant. Zero floor bounds fall back
// to tuning.
type WorldSpec struct {
	ID         string `yaml:"id"`
	Policy     string `yaml:"policy"`
	StorageKey string `yaml:"storage_key"`
	Radius     int    `yaml:"radius"`

	Layout         string `yaml:"layout"`
	LatticeSpacing int    `yaml:"lattice_spacing"`
	Selector       string `yaml:"selector"`

	Assets   string `yaml:"assets"`
	Template string `yaml:"template"`

	TierBands []int `yaml:"tier_bands"`
	FloorsMin int   `yaml:"floors_min"`
	FloorsMax int   `yaml:"floors_max"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		DefaultWorldID: "city",
		Worlds: []WorldSpec{
			{
				ID:       "city",
				Policy:   string(placement.PolicyProcedural),
				Radius:   7,
				Layout:   string(placement.LayoutCross),
				Selector: string(placement.SelectWeighted),
			},
			{
				ID:             "outpost",
				Policy:         string(placement.PolicyProcedural),
				Radius:         6,
				Layout:         string(placement.LayoutLattice),
				LatticeSpacing: 4,
				Selector:       string(placement.SelectSpiral),
				FloorsMin:      1,
				FloorsMax:      1,
			},
			{
				ID:     "spacebase",
				Policy: string(placement.PolicyTemplate),
				Radius: 6,
			},
			{
				ID:     "dungeon",
				Policy: string(placement.PolicyTemplate),
				Radius: 4,
			},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Worlds {
		w := &c.Worlds[i]
		w.ID = strings.TrimSpace(w.ID)
		if w.Policy == "" {
			w.Policy = string(placement.PolicyProcedural)
		}
		if strings.TrimSpace(w.StorageKey) == "" {
			w.StorageKey = "tinyhabits.world." + w.ID
		}
		if w.Assets == "" {
			w.Assets = w.ID
		}
		if w.Policy == string(placement.PolicyTemplate) && w.Template == "" {
			w.Template = w.ID
		}
		if w.Layout == "" {
			w.Layout = string(placement.LayoutNone)
		}
		if w.Selector == "" {
			w.Selector = string(placement.SelectWeighted)
		}
		if len(w.TierBands) == 0 {
			w.TierBands = []int{2, 5, 8}
		}
	}
	if c.DefaultWorldID == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	keys := map[string]string{}
	for _, w := range c.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		if other, dup := keys[w.StorageKey]; dup {
			return fmt.Errorf("world %s storage_key %q already used by %s", w.ID, w.StorageKey, other)
		}
		keys[w.StorageKey] = w.ID
		if w.Radius <= 0 {
			return fmt.Errorf("world %s radius must be > 0", w.ID)
		}
		policy, ok := placement.ParsePolicy(w.Policy)
		if !ok {
			return fmt.Errorf("world %s unknown policy %q", w.ID, w.Policy)
		}
		if policy == placement.PolicyTemplate {
			if w.Template == "" {
				return fmt.Errorf("world %s template must not be empty", w.ID)
			}
			continue
		}
		switch placement.Layout(w.Layout) {
		case placement.LayoutNone, placement.LayoutCross:
		case placement.LayoutLattice:
			if w.LatticeSpacing < 2 {
				return fmt.Errorf("world %s lattice_spacing must be >= 2", w.ID)
			}
		default:
			return fmt.Errorf("world %s unknown layout %q", w.ID, w.Layout)
		}
		switch placement.Selector(w.Selector) {
		case placement.SelectWeighted, placement.SelectSpiral:
		default:
			return fmt.Errorf("world %s unknown selector %q", w.ID, w.Selector)
		}
		if len(w.TierBands) != 3 {
			return fmt.Errorf("world %s tier_bands must have 3 entries", w.ID)
		}
		if w.FloorsMin < 0 || w.FloorsMax < 0 || (w.FloorsMax > 0 && w.FloorsMax < w.FloorsMin) {
			return fmt.Errorf("world %s floors range [%d,%d] invalid", w.ID, w.FloorsMin, w.FloorsMax)
		}
	}
	if c.DefaultWorldID == "" {
		return fmt.Errorf("default_world_id must not be empty")
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	return nil
}

func (c Config) Manifest() []protocol.WorldRef {
	out := make([]protocol.WorldRef, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		out = append(out, protocol.WorldRef{
			WorldID: w.ID,
			Policy:  w.Policy,
			Radius:  w.Radius,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}
