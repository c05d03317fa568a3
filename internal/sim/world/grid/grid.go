package grid

import "sort"

// Grid is a sparse store of occupied cells inside a square of the given
// radius around the origin. Cells are never removed; an occupied coordinate
// keeps its kind for the lifetime of the grid.
type Grid struct {
	radius int
	cells  map[Coord]Cell
	order  []Coord // insertion order
}

type Neighbor struct {
	Dir   Dir
	Coord Coord
	Cell  Cell
}

func New(radius int) *Grid {
	if radius < 0 {
		radius = 0
	}
	side := 2*radius + 1
	return &Grid{
		radius: radius,
		cells:  make(map[Coord]Cell, side*side),
	}
}

func (g *Grid) Radius() int { return g.radius }

func (g *Grid) InBounds(c Coord) bool {
	return c.X >= -g.radius && c.X <= g.radius && c.Y >= -g.radius && c.Y <= g.radius
}

// Set stores cell at c. It is a no-op (returning false) when c is already
// occupied, out of bounds, or cell is empty.
func (g *Grid) Set(c Coord, cell Cell) bool {
	if cell == nil || cell.Kind() == KindEmpty || !g.InBounds(c) {
		return false
	}
	if _, ok := g.cells[c]; ok {
		return false
	}
	g.cells[c] = cell
	g.order = append(g.order, c)
	return true
}

// Get returns the cell at c or Empty{}.
func (g *Grid) Get(c Coord) Cell {
	if cell, ok := g.cells[c]; ok {
		return cell
	}
	return Empty{}
}

func (g *Grid) Has(c Coord) bool {
	_, ok := g.cells[c]
	return ok
}

// KindAt is Get(c).Kind().
func (g *Grid) KindAt(c Coord) Kind {
	if cell, ok := g.cells[c]; ok {
		return cell.Kind()
	}
	return KindEmpty
}

// Neighbors returns the in-bounds cardinal neighbours of c in E, N, W, S
// order. Unoccupied neighbours are reported with Empty{}.
func (g *Grid) Neighbors(c Coord) []Neighbor {
	out := make([]Neighbor, 0, 4)
	for _, d := range AllDirs {
		n := c.Step(d)
		if !g.InBounds(n) {
			continue
		}
		out = append(out, Neighbor{Dir: d, Coord: n, Cell: g.Get(n)})
	}
	return out
}

// Refresh runs fn on the cell stored at c. fn may mutate the cell's payload
// but cannot replace it, so the kind stays fixed.
func (g *Grid) Refresh(c Coord, fn func(Cell)) bool {
	cell, ok := g.cells[c]
	if !ok {
		return false
	}
	fn(cell)
	return true
}

func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) CountKind(k Kind) int {
	n := 0
	for _, cell := range g.cells {
		if cell.Kind() == k {
			n++
		}
	}
	return n
}

// Order returns occupied coordinates in insertion order.
func (g *Grid) Order() []Coord {
	out := make([]Coord, len(g.order))
	copy(out, g.order)
	return out
}

// Each visits occupied cells in insertion order.
func (g *Grid) Each(fn func(Coord, Cell)) {
	for _, c := range g.order {
		fn(c, g.cells[c])
	}
}

// Coords returns every in-bounds coordinate, row-major (Y then X).
func (g *Grid) Coords() []Coord {
	side := 2*g.radius + 1
	out := make([]Coord, 0, side*side)
	for y := -g.radius; y <= g.radius; y++ {
		for x := -g.radius; x <= g.radius; x++ {
			out = append(out, Coord{X: x, Y: y})
		}
	}
	return out
}

// Free returns unoccupied in-bounds coordinates, row-major.
func (g *Grid) Free() []Coord {
	all := g.Coords()
	out := all[:0]
	for _, c := range all {
		if !g.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Sorted returns occupied coordinates ordered by (Y, X).
func (g *Grid) Sorted() []Coord {
	out := g.Order()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
