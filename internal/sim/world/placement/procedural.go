package placement

import (
	"fmt"

	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/mathx"
	"tinyhabits.city/internal/sim/world/logic/weighted"
)

type Selector string

const (
	SelectWeighted Selector = "weighted"
	SelectSpiral   Selector = "spiral"
)

type Layout string

const (
	LayoutNone    Layout = "none"
	LayoutCross   Layout = "cross"
	LayoutLattice Layout = "lattice"
)

type ProceduralConfig struct {
	Selector    Selector
	MaxDistance int

	// TierBands are the inclusive Chebyshev upper bounds of the core,
	// primary and secondary tiers. Anything farther is outer.
	TierBands [3]int
	Tiers     [4][]string

	FloorsMin int
	FloorsMax int
	Parts     [][]string

	Decorations []catalogs.WeightedAsset

	Layout         Layout
	LatticeSpacing int
}

type Procedural struct {
	cfg        ProceduralConfig
	decoTable  weighted.Table
	spiral     []grid.Coord
	spiralSize int
}

func NewProcedural(cfg ProceduralConfig) (*Procedural, error) {
	if cfg.Selector == "" {
		cfg.Selector = SelectWeighted
	}
	if cfg.Layout == "" {
		cfg.Layout = LayoutNone
	}
	switch cfg.Selector {
	case SelectWeighted, SelectSpiral:
	default:
		return nil, fmt.Errorf("unknown selector %q", cfg.Selector)
	}
	switch cfg.Layout {
	case LayoutNone, LayoutCross:
	case LayoutLattice:
		if cfg.LatticeSpacing < 2 {
			return nil, fmt.Errorf("lattice spacing must be >= 2, got %d", cfg.LatticeSpacing)
		}
	default:
		return nil, fmt.Errorf("unknown layout %q", cfg.Layout)
	}
	if cfg.MaxDistance <= 0 {
		return nil, fmt.Errorf("max distance must be > 0")
	}
	if cfg.TierBands[0] < 0 || cfg.TierBands[1] < cfg.TierBands[0] || cfg.TierBands[2] < cfg.TierBands[1] {
		return nil, fmt.Errorf("tier bands %v must be non-decreasing", cfg.TierBands)
	}
	for i, tier := range cfg.Tiers {
		if len(tier) == 0 {
			return nil, fmt.Errorf("tier %d has no assets", i)
		}
	}
	if cfg.FloorsMin <= 0 || cfg.FloorsMax < cfg.FloorsMin {
		return nil, fmt.Errorf("floors range [%d,%d] invalid", cfg.FloorsMin, cfg.FloorsMax)
	}
	for i, slot := range cfg.Parts {
		if len(slot) == 0 {
			return nil, fmt.Errorf("part slot %d has no ids", i)
		}
	}

	ws := make([]int, len(cfg.Decorations))
	for i, d := range cfg.Decorations {
		ws[i] = d.Weight
	}
	return &Procedural{cfg: cfg, decoTable: weighted.NewTable(ws)}, nil
}

func (p *Procedural) Policy() Policy { return PolicyProcedural }

func (p *Procedural) Config() ProceduralConfig { return p.cfg }

// Next prefers one more floor on the first unfinished structure in
// placement order, then a new structure.
func (p *Procedural) Next(g *grid.Grid, r weighted.Source) (Placement, bool) {
	if c, ok := firstGrowable(g); ok {
		return Placement{Coord: c, Floor: true}, true
	}
	var (
		c  grid.Coord
		ok bool
	)
	if p.cfg.Selector == SelectSpiral {
		c, ok = p.spiralCell(g)
	} else {
		c, ok = p.weightedCell(g, r)
	}
	if !ok {
		return Placement{}, false
	}
	return Placement{Coord: c, Cell: p.newStructure(c, r)}, true
}

func (p *Procedural) NextDecoration(g *grid.Grid, r weighted.Source) (Placement, bool) {
	if p.decoTable.Total() == 0 {
		return Placement{}, false
	}
	free := g.Free()
	if len(free) == 0 {
		return Placement{}, false
	}
	ws := make([]int, len(free))
	for i, c := range free {
		ws[i] = 1
		if adjacentToBuilt(g, c) {
			ws[i] = 3
		}
	}
	i := weighted.NewTable(ws).Pick(r)
	if i < 0 {
		return Placement{}, false
	}
	d := p.decoTable.Pick(r)
	return Placement{
		Coord: free[i],
		Cell: &grid.Decoration{
			AssetID:     p.cfg.Decorations[d].ID,
			Orientation: grid.QuarterTurns(0),
		},
	}, true
}

// LayoutCoords lists the connective cells laid down at construction,
// row-major.
func (p *Procedural) LayoutCoords(radius int) []grid.Coord {
	var out []grid.Coord
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			c := grid.Coord{X: x, Y: y}
			switch p.cfg.Layout {
			case LayoutCross:
				if x == 0 || y == 0 {
					out = append(out, c)
				}
			case LayoutLattice:
				if p.IsLattice(c) {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// IsLattice reports whether exactly one of c.X, c.Y is a multiple of the
// lattice spacing. Lattice crossings stay free for structures.
func (p *Procedural) IsLattice(c grid.Coord) bool {
	if p.cfg.Layout != LayoutLattice {
		return false
	}
	onX := mathx.Mod(c.X, p.cfg.LatticeSpacing) == 0
	onY := mathx.Mod(c.Y, p.cfg.LatticeSpacing) == 0
	return onX != onY
}

// Tier returns the tier index for c.
func (p *Procedural) Tier(c grid.Coord) int {
	d := mathx.Chebyshev(c.X, c.Y)
	for i, bound := range p.cfg.TierBands {
		if d <= bound {
			return i
		}
	}
	return 3
}

func (p *Procedural) newStructure(c grid.Coord, r weighted.Source) *grid.Structure {
	tier := p.cfg.Tiers[p.Tier(c)]
	s := &grid.Structure{
		AssetID:     tier[r.Intn(len(tier))],
		Orientation: grid.QuarterTurns(r.Intn(4)),
		Floors:      1,
		MaxFloors:   p.cfg.FloorsMin + r.Intn(p.cfg.FloorsMax-p.cfg.FloorsMin+1),
	}
	if len(p.cfg.Parts) > 0 {
		s.Parts = make([]string, len(p.cfg.Parts))
		for i, slot := range p.cfg.Parts {
			s.Parts[i] = slot[r.Intn(len(slot))]
		}
	}
	return s
}

// weightedCell draws among free cells touching a road or structure,
// favouring the centre. With no such cell every free cell is equally
// likely.
func (p *Procedural) weightedCell(g *grid.Grid, r weighted.Source) (grid.Coord, bool) {
	free := g.Free()
	if len(free) == 0 {
		return grid.Coord{}, false
	}
	var (
		cands []grid.Coord
		ws    []int
	)
	for _, c := range free {
		if !adjacentToBuilt(g, c) {
			continue
		}
		cands = append(cands, c)
		ws = append(ws, mathx.MaxInt(1, p.cfg.MaxDistance-mathx.Manhattan(c.X, c.Y)))
	}
	if len(cands) == 0 {
		cands = free
		ws = make([]int, len(free))
		for i := range ws {
			ws[i] = 1
		}
	}
	i := weighted.NewTable(ws).Pick(r)
	if i < 0 {
		return grid.Coord{}, false
	}
	return cands[i], true
}

// spiralCell returns the first free non-lattice cell in ring order. The
// whole order is scanned so every free cell is eventually reached.
func (p *Procedural) spiralCell(g *grid.Grid) (grid.Coord, bool) {
	for _, c := range p.spiralOrder(g.Radius()) {
		if g.Has(c) || p.IsLattice(c) {
			continue
		}
		return c, true
	}
	return grid.Coord{}, false
}

func (p *Procedural) spiralOrder(radius int) []grid.Coord {
	if p.spiral != nil && p.spiralSize == radius {
		return p.spiral
	}
	p.spiral = SpiralOrder(radius)
	p.spiralSize = radius
	return p.spiral
}

// SpiralOrder lists coordinates ring by ring outward from the origin;
// within a ring x is the outer loop and y the inner.
func SpiralOrder(radius int) []grid.Coord {
	side := 2*radius + 1
	out := make([]grid.Coord, 0, side*side)
	for d := 0; d <= radius; d++ {
		for x := -d; x <= d; x++ {
			for y := -d; y <= d; y++ {
				if mathx.Chebyshev(x, y) == d {
					out = append(out, grid.Coord{X: x, Y: y})
				}
			}
		}
	}
	return out
}

func firstGrowable(g *grid.Grid) (grid.Coord, bool) {
	for _, c := range g.Order() {
		if s, ok := g.Get(c).(*grid.Structure); ok && s.Growable() {
			return c, true
		}
	}
	return grid.Coord{}, false
}
