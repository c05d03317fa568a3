package connect

import (
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/rotation"
)

// Config carries the per-world asset names for each variant and the base
// angular correction applied to every connective rotation.
type Config struct {
	OffsetDeg int
	Assets    map[grid.Variant]string
}

func (c Config) AssetFor(v grid.Variant) string {
	if c.Assets == nil {
		return v.String()
	}
	if a, ok := c.Assets[v]; ok && a != "" {
		return a
	}
	return v.String()
}

// Degrees converts a resolved quarter-turn rotation into renderer degrees.
func (c Config) Degrees(turns int) int {
	return rotation.QuarterToDegrees(turns, c.OffsetDeg)
}

// cornerTurns maps an adjacent direction pair to its quarter-turn constant.
var cornerTurns = map[grid.DirSet]int{
	grid.DirsOf(grid.East, grid.North): 2,
	grid.DirsOf(grid.North, grid.West): 1,
	grid.DirsOf(grid.West, grid.South): 0,
	grid.DirsOf(grid.East, grid.South): 3,
}

// Resolve returns the display variant and quarter-turn rotation for a
// connective cell linked to the given directions.
func Resolve(links grid.DirSet) (grid.Variant, int) {
	dirs := links.Dirs()
	switch len(dirs) {
	case 0:
		return grid.VariantStraight, 0
	case 1:
		return grid.VariantStraight, int(dirs[0])
	case 2:
		if dirs[0].Opposite() == dirs[1] {
			return grid.VariantStraight, int(dirs[0])
		}
		return grid.VariantCorner, cornerTurns[links]
	case 3:
		for _, d := range grid.AllDirs {
			if !links.Has(d) {
				return grid.VariantTee, (int(d) + 2) % 4
			}
		}
	}
	return grid.VariantCross, 0
}

// Links reports which in-bounds cardinal neighbours of c are connective.
func Links(g *grid.Grid, c grid.Coord) grid.DirSet {
	var s grid.DirSet
	for _, n := range g.Neighbors(c) {
		if n.Cell.Kind() == grid.KindConnective {
			s = s.With(n.Dir)
		}
	}
	return s
}
