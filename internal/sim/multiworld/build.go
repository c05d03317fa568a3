package multiworld

import (
	"fmt"
	"log"

	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/connect"
	"tinyhabits.city/internal/sim/world/logic/mathx"
	"tinyhabits.city/internal/sim/world/placement"
)

// BuildWorld assembles a fresh world for spec from the loaded catalogs.
func BuildWorld(spec WorldSpec, tune tuning.Tuning, cats *catalogs.Catalogs, logger *log.Logger) (*world.World, error) {
	set, ok := cats.AssetSet(spec.Assets)
	if !ok {
		return nil, fmt.Errorf("world %s: unknown asset set %q", spec.ID, spec.Assets)
	}
	strategy, err := buildStrategy(spec, tune, set, cats)
	if err != nil {
		return nil, err
	}
	return world.New(world.Config{
		ID:       spec.ID,
		Radius:   spec.Radius,
		Strategy: strategy,
		Connective: connect.Config{
			OffsetDeg: tune.ConnectiveOffsetDeg,
			Assets: map[grid.Variant]string{
				grid.VariantStraight: set.Connective.Straight,
				grid.VariantCorner:   set.Connective.Corner,
				grid.VariantTee:      set.Connective.Tee,
				grid.VariantCross:    set.Connective.Cross,
			},
		},
		Seed:   mathx.SeedFor(tune.Seed, spec.ID),
		Logger: logger,
	})
}

func buildStrategy(spec WorldSpec, tune tuning.Tuning, set catalogs.AssetSet, cats *catalogs.Catalogs) (placement.Strategy, error) {
	policy, ok := placement.ParsePolicy(spec.Policy)
	if !ok {
		return nil, fmt.Errorf("world %s: unknown policy %q", spec.ID, spec.Policy)
	}
	if policy == placement.PolicyTemplate {
		entries, ok := cats.Template(spec.Template)
		if !ok {
			return nil, fmt.Errorf("world %s: unknown template %q", spec.ID, spec.Template)
		}
		return placement.NewTemplate(entries, set.KindRules), nil
	}

	if set.Tiers.Empty() {
		return nil, fmt.Errorf("world %s: asset set %s has no structure tiers", spec.ID, set.ID)
	}
	floorsMin, floorsMax := spec.FloorsMin, spec.FloorsMax
	if floorsMin == 0 {
		floorsMin = tune.FloorsMin
	}
	if floorsMax == 0 {
		floorsMax = tune.FloorsMax
	}
	var bands [3]int
	copy(bands[:], spec.TierBands)
	parts := make([][]string, 0, len(set.Parts))
	for _, p := range set.Parts {
		parts = append(parts, p.IDs)
	}
	p, err := placement.NewProcedural(placement.ProceduralConfig{
		Selector:       placement.Selector(spec.Selector),
		MaxDistance:    tune.MaxDistance,
		TierBands:      bands,
		Tiers:          set.Tiers.Bands(),
		FloorsMin:      floorsMin,
		FloorsMax:      floorsMax,
		Parts:          parts,
		Decorations:    set.Decorations,
		Layout:         placement.Layout(spec.Layout),
		LatticeSpacing: spec.LatticeSpacing,
	})
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", spec.ID, err)
	}
	return p, nil
}
