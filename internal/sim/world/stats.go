package world

import (
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/placement"
)

type Stats struct {
	WorldID           string `json:"world_id"`
	Policy            string `json:"policy"`
	State             string `json:"state"`
	StructureCount    int    `json:"structure_count"`
	OccupiedCellCount int    `json:"occupied_cell_count"`
	Floors            int    `json:"floors"`
	Decorations       int    `json:"decorations"`
	Connective        int    `json:"connective"`
	TemplateTotal     int    `json:"template_total,omitempty"`
	TemplatePlaced    int    `json:"template_placed,omitempty"`
	Grows             uint64 `json:"grows"`
}

func (w *World) Stats() Stats {
	s := Stats{
		WorldID:           w.cfg.ID,
		Policy:            string(w.Policy()),
		State:             w.state.String(),
		OccupiedCellCount: w.grid.Len(),
		Grows:             w.grows,
	}
	w.grid.Each(func(_ grid.Coord, cell grid.Cell) {
		switch v := cell.(type) {
		case *grid.Structure:
			s.StructureCount++
			s.Floors += v.Floors
		case *grid.Decoration:
			s.Decorations++
		case *grid.Connective:
			s.Connective++
		}
	})
	if tpl, ok := w.cfg.Strategy.(*placement.Template); ok {
		s.TemplateTotal = tpl.Total()
		s.TemplatePlaced = tpl.Cursor()
	}
	return s
}

// CellView is a read-only copy of one occupied cell.
type CellView struct {
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Kind      string   `json:"kind"`
	AssetID   string   `json:"asset_id"`
	Degrees   int      `json:"degrees"`
	Variant   string   `json:"variant,omitempty"`
	Links     string   `json:"links,omitempty"`
	Floors    int      `json:"floors,omitempty"`
	MaxFloors int      `json:"max_floors,omitempty"`
	Parts     []string `json:"parts,omitempty"`
	WallSide  string   `json:"wall_side,omitempty"`
}

// Cells lists occupied cells ordered by (y, x).
func (w *World) Cells() []CellView {
	coords := w.grid.Sorted()
	out := make([]CellView, 0, len(coords))
	for _, c := range coords {
		cell := w.grid.Get(c)
		v := CellView{X: c.X, Y: c.Y, Kind: cell.Kind().String(), AssetID: grid.AssetOf(cell), Degrees: w.degrees(cell)}
		switch t := cell.(type) {
		case *grid.Connective:
			v.Variant = t.Variant.String()
			v.Links = t.Links.String()
		case *grid.Structure:
			v.Floors = t.Floors
			v.MaxFloors = t.MaxFloors
			v.Parts = append([]string(nil), t.Parts...)
		case *grid.Decoration:
			v.WallSide = t.WallSide
		}
		out = append(out, v)
	}
	return out
}

// ResolveConnective re-tiles every connective cell and returns how many
// changed. A stable world always returns 0.
func (w *World) ResolveConnective() int {
	return len(resolveAll(w))
}
