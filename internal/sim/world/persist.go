package world

import (
	"fmt"
	"sort"

	"tinyhabits.city/internal/persistence/snapshot"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/mathx"
	"tinyhabits.city/internal/sim/world/logic/rotation"
	"tinyhabits.city/internal/sim/world/placement"
)

// Save captures the world as a flat record list. Connective cells of
// procedural worlds are left out; the layout regenerates them.
func (w *World) Save() snapshot.StateV1 {
	st := snapshot.StateV1{
		Version: snapshot.Version,
		WorldID: w.cfg.ID,
		Policy:  string(w.Policy()),
	}
	if tpl, ok := w.cfg.Strategy.(*placement.Template); ok {
		ts := &snapshot.TemplateStateV1{CursorIndex: tpl.Cursor(), PlacedEntries: []snapshot.TemplateEntryV1{}}
		w.grid.Each(func(c grid.Coord, cell grid.Cell) {
			ts.PlacedEntries = append(ts.PlacedEntries, snapshot.TemplateEntryV1{
				X:               c.X,
				Y:               c.Y,
				AssetFile:       grid.AssetOf(cell),
				RotationDegrees: grid.OrientationOf(cell).Raw(),
			})
		})
		st.Template = ts
		return st
	}

	w.grid.Each(func(c grid.Coord, cell grid.Cell) {
		switch v := cell.(type) {
		case *grid.Structure:
			st.Placements = append(st.Placements, snapshot.PlacementV1{
				X:           c.X,
				Y:           c.Y,
				AssetID:     v.AssetID,
				Orientation: v.Orientation.Turns(),
				Kind:        grid.KindStructure.String(),
				Floors:      v.Floors,
				MaxFloors:   v.MaxFloors,
				Parts:       append([]string(nil), v.Parts...),
			})
		case *grid.Decoration:
			st.Placements = append(st.Placements, snapshot.PlacementV1{
				X:           c.X,
				Y:           c.Y,
				AssetID:     v.AssetID,
				Orientation: v.Orientation.Turns(),
				Kind:        grid.KindDecoration.String(),
			})
		}
	})
	return st
}

// SaveBytes is Save encoded for storage.
func (w *World) SaveBytes() ([]byte, error) {
	return snapshot.Encode(w.Save())
}

// Load rebuilds the world from serialized state. It reports whether a
// prior state was applied. Corrupt or foreign input leaves a fresh world.
func (w *World) Load(b []byte) bool {
	if len(b) == 0 {
		w.reset()
		return false
	}
	st, err := snapshot.Decode(b)
	if err == nil {
		err = w.checkState(st)
	}
	if err != nil {
		w.logger.Printf("warn: world %s: discarding saved state: %v", w.cfg.ID, err)
		w.reset()
		return false
	}

	w.reset()
	var applied, skipped int
	if tpl, ok := w.cfg.Strategy.(*placement.Template); ok {
		applied, skipped = w.replayTemplate(tpl, st.Template.PlacedEntries)
		cursor := tpl.Resync(w.grid)
		if cursor != st.Template.CursorIndex {
			w.logger.Printf("world %s: template cursor %d recomputed as %d", w.cfg.ID, st.Template.CursorIndex, cursor)
		}
	} else {
		applied, skipped = w.replayProcedural(st.Placements)
	}
	if skipped > 0 {
		w.logger.Printf("warn: world %s: skipped %d saved placements", w.cfg.ID, skipped)
	}
	w.logger.Printf("world %s: restored %d placements (%d cells)", w.cfg.ID, applied, w.grid.Len())
	return true
}

func (w *World) checkState(st snapshot.StateV1) error {
	if st.WorldID != w.cfg.ID {
		return fmt.Errorf("state belongs to world %q", st.WorldID)
	}
	if st.Policy != string(w.Policy()) {
		return fmt.Errorf("state policy %q does not match %q", st.Policy, w.Policy())
	}
	if w.Policy() == placement.PolicyTemplate && st.Template == nil {
		return fmt.Errorf("template state missing")
	}
	return nil
}

func (w *World) replayProcedural(recs []snapshot.PlacementV1) (applied, skipped int) {
	sorted := append([]snapshot.PlacementV1(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return mathx.Chebyshev(sorted[i].X, sorted[i].Y) < mathx.Chebyshev(sorted[j].X, sorted[j].Y)
	})
	for _, r := range sorted {
		c := grid.Coord{X: r.X, Y: r.Y}
		o := grid.QuarterTurns(rotation.NormalizeRotation(r.Orientation))
		var cell grid.Cell
		floors := 1
		switch r.Kind {
		case grid.KindStructure.String():
			maxFloors := mathx.MaxInt(1, r.MaxFloors)
			floors = mathx.MaxInt(1, r.Floors)
			if floors > maxFloors {
				floors = maxFloors
			}
			cell = &grid.Structure{
				AssetID:     r.AssetID,
				Orientation: o,
				Floors:      1,
				MaxFloors:   maxFloors,
				Parts:       append([]string(nil), r.Parts...),
			}
		default:
			cell = &grid.Decoration{AssetID: r.AssetID, Orientation: o}
		}
		if _, ok := w.commit(placement.Placement{Coord: c, Cell: cell}, true); !ok {
			skipped++
			continue
		}
		for f := 1; f < floors; f++ {
			w.commit(placement.Placement{Coord: c, Floor: true}, true)
		}
		applied++
	}
	return applied, skipped
}

func (w *World) replayTemplate(tpl *placement.Template, recs []snapshot.TemplateEntryV1) (applied, skipped int) {
	sorted := append([]snapshot.TemplateEntryV1(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return mathx.Chebyshev(sorted[i].X, sorted[i].Y) < mathx.Chebyshev(sorted[j].X, sorted[j].Y)
	})
	for _, r := range sorted {
		c := grid.Coord{X: r.X, Y: r.Y}
		entry, ok := tpl.EntryAt(c)
		if !ok || entry.File != r.AssetFile {
			// Not (or no longer) authored here; keep what was saved.
			entry = catalogs.TemplateEntry{X: r.X, Y: r.Y, File: r.AssetFile, Rotation: r.RotationDegrees}
		}
		if _, ok := w.commit(placement.Placement{Coord: c, Cell: tpl.CellFor(entry)}, true); !ok {
			skipped++
			continue
		}
		applied++
	}
	return applied, skipped
}
