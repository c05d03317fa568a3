package connect

import "tinyhabits.city/internal/sim/world/grid"

// Place inserts a connective cell at c and re-tiles every connective
// neighbour. It returns the neighbours whose visual changed, in E, N, W, S
// order. ok is false when the grid rejected the cell.
func Place(g *grid.Grid, c grid.Coord, cell *grid.Connective, cfg Config) (changed []grid.Coord, ok bool) {
	if cell == nil {
		cell = &grid.Connective{}
	}
	if !g.Set(c, cell) {
		return nil, false
	}
	Refresh(g, c, cfg)
	for _, n := range g.Neighbors(c) {
		if n.Cell.Kind() != grid.KindConnective {
			continue
		}
		if Refresh(g, n.Coord, cfg) {
			changed = append(changed, n.Coord)
		}
	}
	return changed, true
}

// Refresh recomputes the connective cell at c from its current neighbours.
// It reports whether the visible variant, rotation or asset changed.
// Authored cells only have their Links updated.
func Refresh(g *grid.Grid, c grid.Coord, cfg Config) bool {
	links := Links(g, c)
	changed := false
	g.Refresh(c, func(cell grid.Cell) {
		conn, ok := cell.(*grid.Connective)
		if !ok {
			return
		}
		conn.Links = links
		if conn.Authored {
			return
		}
		v, turns := Resolve(links)
		asset := cfg.AssetFor(v)
		o := grid.QuarterTurns(turns)
		if conn.Variant != v || conn.Orientation != o || conn.AssetID != asset {
			changed = true
		}
		conn.Variant = v
		conn.Orientation = o
		conn.AssetID = asset
	})
	return changed
}

// ResolveAll re-tiles every connective cell. On a stable grid it returns
// nothing.
func ResolveAll(g *grid.Grid, cfg Config) []grid.Coord {
	var changed []grid.Coord
	g.Each(func(c grid.Coord, cell grid.Cell) {
		if cell.Kind() != grid.KindConnective {
			return
		}
		if Refresh(g, c, cfg) {
			changed = append(changed, c)
		}
	})
	return changed
}
