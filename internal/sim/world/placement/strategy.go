// Package placement decides where each growth step lands and what it looks
// like. A world uses exactly one Strategy, chosen when the world is built.
package placement

import (
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/weighted"
)

type Policy string

const (
	PolicyProcedural Policy = "procedural"
	PolicyTemplate   Policy = "template"
)

func ParsePolicy(s string) (Policy, bool) {
	switch Policy(s) {
	case PolicyProcedural, PolicyTemplate:
		return Policy(s), true
	default:
		return "", false
	}
}

// Placement is one proposed mutation. Either Cell is set (a new cell at
// Coord) or Floor is true (one more floor on the structure at Coord).
type Placement struct {
	Coord grid.Coord
	Cell  grid.Cell
	Floor bool
}

type Strategy interface {
	Policy() Policy
	// Next proposes the next placement, or false when nothing remains.
	Next(g *grid.Grid, r weighted.Source) (Placement, bool)
}

// Decorator is implemented by strategies that can scatter decorations
// between structure steps.
type Decorator interface {
	NextDecoration(g *grid.Grid, r weighted.Source) (Placement, bool)
}

// Layouter is implemented by strategies that lay connective cells down when
// a world is created.
type Layouter interface {
	LayoutCoords(radius int) []grid.Coord
}

func adjacentToBuilt(g *grid.Grid, c grid.Coord) bool {
	for _, n := range g.Neighbors(c) {
		switch n.Cell.Kind() {
		case grid.KindConnective, grid.KindStructure:
			return true
		}
	}
	return false
}
