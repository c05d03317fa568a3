package placement

import (
	"sort"

	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/mathx"
	"tinyhabits.city/internal/sim/world/logic/weighted"
)

// Template replays an authored entry list, nearest ring first. It draws no
// randomness.
type Template struct {
	entries []catalogs.TemplateEntry
	byCoord map[grid.Coord]int
	rules   catalogs.KindRules
	cursor  int
}

func NewTemplate(entries []catalogs.TemplateEntry, rules catalogs.KindRules) *Template {
	sorted := make([]catalogs.TemplateEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return mathx.Chebyshev(sorted[i].X, sorted[i].Y) < mathx.Chebyshev(sorted[j].X, sorted[j].Y)
	})
	byCoord := make(map[grid.Coord]int, len(sorted))
	for i, e := range sorted {
		c := grid.Coord{X: e.X, Y: e.Y}
		if _, dup := byCoord[c]; !dup {
			byCoord[c] = i
		}
	}
	return &Template{entries: sorted, byCoord: byCoord, rules: rules}
}

func (t *Template) Policy() Policy { return PolicyTemplate }

// Next skips entries whose cell is already taken, then hands out the next
// entry and advances the cursor past it.
func (t *Template) Next(g *grid.Grid, _ weighted.Source) (Placement, bool) {
	for t.cursor < len(t.entries) && g.Has(entryCoord(t.entries[t.cursor])) {
		t.cursor++
	}
	if t.cursor >= len(t.entries) {
		return Placement{}, false
	}
	e := t.entries[t.cursor]
	t.cursor++
	return Placement{Coord: entryCoord(e), Cell: t.CellFor(e)}, true
}

// CellFor classifies an entry. Connective files become authored connective
// cells; wall mounts and decoration prefixes become decorations; the rest
// are single-floor structures.
func (t *Template) CellFor(e catalogs.TemplateEntry) grid.Cell {
	o := grid.AuthoredDegrees(e.Rotation)
	switch {
	case t.rules.IsConnective(e.File):
		return &grid.Connective{AssetID: e.File, Orientation: o, Authored: true}
	case e.WallMount || t.rules.IsDecoration(e.File):
		return &grid.Decoration{AssetID: e.File, Orientation: o, WallMount: e.WallMount, WallSide: e.WallSide}
	default:
		return &grid.Structure{AssetID: e.File, Orientation: o, Floors: 1, MaxFloors: 1}
	}
}

// EntryAt returns the authored entry at c, if any.
func (t *Template) EntryAt(c grid.Coord) (catalogs.TemplateEntry, bool) {
	i, ok := t.byCoord[c]
	if !ok {
		return catalogs.TemplateEntry{}, false
	}
	return t.entries[i], true
}

// Resync sets the cursor to the length of the sorted prefix that is
// already occupied in g.
func (t *Template) Resync(g *grid.Grid) int {
	n := 0
	for n < len(t.entries) && g.Has(entryCoord(t.entries[n])) {
		n++
	}
	t.cursor = n
	return n
}

func (t *Template) Reset()      { t.cursor = 0 }
func (t *Template) Cursor() int { return t.cursor }
func (t *Template) Total() int  { return len(t.entries) }

// Entries returns the sorted entry list.
func (t *Template) Entries() []catalogs.TemplateEntry {
	out := make([]catalogs.TemplateEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func entryCoord(e catalogs.TemplateEntry) grid.Coord { return grid.Coord{X: e.X, Y: e.Y} }
