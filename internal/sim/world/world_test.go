package world

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/connect"
	"tinyhabits.city/internal/sim/world/placement"
)

func cityStrategy(t *testing.T) *placement.Procedural {
	t.Helper()
	tier := []string{"shop_blue", "shop_red", "office_tan"}
	p, err := placement.NewProcedural(placement.ProceduralConfig{
		Selector:    placement.SelectWeighted,
		MaxDistance: 20,
		TierBands:   [3]int{1, 2, 3},
		Tiers:       [4][]string{tier, tier, tier, tier},
		FloorsMin:   3,
		FloorsMax:   5,
		Parts:       [][]string{{"floor_tan", "floor_red"}, {"roof_flat_tan"}},
		Decorations: []catalogs.WeightedAsset{{ID: "tree_green", Weight: 3}, {ID: "bench_left", Weight: 2}},
		Layout:      placement.LayoutCross,
	})
	require.NoError(t, err)
	return p
}

func newCity(t *testing.T, seed int64, logger *log.Logger) *World {
	t.Helper()
	w, err := New(Config{
		ID:         "city",
		Radius:     3,
		Strategy:   cityStrategy(t),
		Connective: connect.Config{OffsetDeg: 180},
		Seed:       seed,
		Logger:     logger,
	})
	require.NoError(t, err)
	return w
}

func baseEntries() []catalogs.TemplateEntry {
	return []catalogs.TemplateEntry{
		{X: 2, Y: 0, File: "basemodule_A.gltf", Rotation: 90},
		{X: 0, Y: 0, File: "basemodule_E.gltf"},
		{X: 1, Y: 0, File: "tunnel_straight_A.gltf", Rotation: 90},
		{X: 0, Y: 1, File: "tunnel_straight_B.gltf"},
		{X: -1, Y: -1, File: "rock_A.gltf", Rotation: 270},
		{X: -2, Y: 2, File: "banner_brown.gltf", WallMount: true, WallSide: "back"},
		{X: 9, Y: 9, File: "lander_B.gltf"},
		{X: 0, Y: 2, File: "tunnel_straight_A.gltf"},
	}
}

func newTemplateWorld(t *testing.T, entries []catalogs.TemplateEntry, seed int64) *World {
	t.Helper()
	w, err := New(Config{
		ID:     "spacebase",
		Radius: 2,
		Strategy: placement.NewTemplate(entries, catalogs.KindRules{
			ConnectivePrefixes: []string{"tunnel_"},
			DecorationPrefixes: []string{"rock_"},
		}),
		Seed: seed,
	})
	require.NoError(t, err)
	return w
}

func growAll(w *World, limit int) []*Descriptor {
	var out []*Descriptor
	for i := 0; i < limit; i++ {
		d := w.Grow()
		if d == nil {
			break
		}
		out = append(out, d)
	}
	return out
}

func TestNew_LaysCrossLayout(t *testing.T) {
	w := newCity(t, 1, nil)
	st := w.Stats()
	require.Equal(t, 13, st.Connective)
	require.Equal(t, 13, st.OccupiedCellCount)
	require.Equal(t, 0, st.StructureCount)
	require.Equal(t, 0, w.ResolveConnective())

	var center CellView
	for _, c := range w.Cells() {
		if c.X == 0 && c.Y == 0 {
			center = c
		}
	}
	require.Equal(t, "cross", center.Variant)
	require.Equal(t, "ENWS", center.Links)
}

func TestGrow_Monotonic(t *testing.T) {
	w := newCity(t, 7, nil)
	seen := map[grid.Coord]grid.Kind{}
	for _, c := range w.Cells() {
		seen[grid.Coord{X: c.X, Y: c.Y}] = kindOf(t, c.Kind)
	}
	prev := w.Stats().OccupiedCellCount

	for i := 0; i < 400; i++ {
		var d *Descriptor
		if i%3 == 2 {
			d = w.Decorate()
		} else {
			d = w.Grow()
		}
		if d == nil && w.State() == StateExhausted {
			break
		}
		cur := w.Stats().OccupiedCellCount
		require.GreaterOrEqual(t, cur, prev)
		prev = cur

		now := map[grid.Coord]grid.Kind{}
		for _, c := range w.Cells() {
			now[grid.Coord{X: c.X, Y: c.Y}] = kindOf(t, c.Kind)
		}
		for c, k := range seen {
			require.Equal(t, k, now[c], "cell %v changed", c)
		}
		seen = now
	}
	require.Equal(t, StateExhausted, w.State())
	require.Equal(t, 0, w.ResolveConnective())
}

func TestGrow_ProceduralTerminates(t *testing.T) {
	w := newCity(t, 3, nil)
	ds := growAll(w, 10_000)
	require.Less(t, len(ds), 10_000)
	require.Nil(t, w.Grow())
	require.Nil(t, w.Grow())
	require.Equal(t, StateExhausted, w.State())

	st := w.Stats()
	require.Equal(t, 49, st.OccupiedCellCount)
	require.Equal(t, 36, st.StructureCount)
	require.Equal(t, uint64(len(ds)), st.Grows)
}

func TestGrow_FloorsBeforeNewStructures(t *testing.T) {
	w := newCity(t, 11, nil)
	first := w.Grow()
	require.Equal(t, PlacedStructure, first.PlacedKind)
	require.Equal(t, 1, first.Floors)

	second := w.Grow()
	require.Equal(t, PlacedFloor, second.PlacedKind)
	require.Equal(t, first.X, second.X)
	require.Equal(t, first.Y, second.Y)
	require.Equal(t, 2, second.Floors)
	require.Equal(t, placement.DisplayName(first.AssetID), second.DisplayName)
}

func TestDecorate_DoesNotTouchGrowthState(t *testing.T) {
	w := newCity(t, 5, nil)
	d := w.Decorate()
	require.NotNil(t, d)
	require.Equal(t, PlacedDecoration, d.PlacedKind)
	require.Equal(t, uint64(0), w.Grows())
	require.Equal(t, 1, w.Stats().Decorations)

	tw := newTemplateWorld(t, baseEntries(), 1)
	require.Nil(t, tw.Decorate())
}

func TestSaveLoad_ProceduralRoundTrip(t *testing.T) {
	w := newCity(t, 21, nil)
	for i := 0; i < 25; i++ {
		w.Grow()
		if i%3 == 0 {
			w.Decorate()
		}
	}
	b, err := w.SaveBytes()
	require.NoError(t, err)
	require.NotContains(t, string(b), "road")

	restored := newCity(t, 999, nil)
	require.True(t, restored.Load(b))
	require.Equal(t, w.Cells(), restored.Cells())
	require.Equal(t, w.Stats().Floors, restored.Stats().Floors)
	require.Equal(t, 0, restored.ResolveConnective())

	// Growth resumes from the restored grid.
	require.Equal(t, w.Grow().PlacedKind, restored.Grow().PlacedKind)
}

func TestSaveLoad_TemplateRoundTrip(t *testing.T) {
	w := newTemplateWorld(t, baseEntries(), 1)
	growAll(w, 4)
	b, err := w.SaveBytes()
	require.NoError(t, err)

	restored := newTemplateWorld(t, baseEntries(), 2)
	require.True(t, restored.Load(b))
	require.Equal(t, w.Cells(), restored.Cells())
	require.Equal(t, w.Stats().TemplatePlaced, restored.Stats().TemplatePlaced)

	require.Equal(t, w.Grow(), restored.Grow())
}

func TestTemplate_DeterministicAcrossSeeds(t *testing.T) {
	a := newTemplateWorld(t, baseEntries(), 1)
	b := newTemplateWorld(t, baseEntries(), 424242)
	da := growAll(a, 100)
	db := growAll(b, 100)
	require.Equal(t, da, db)

	// (9,9) is outside the radius and is skipped.
	require.Len(t, da, len(baseEntries())-1)
	require.Equal(t, "Basemodule E", da[0].DisplayName)
	require.Equal(t, StateExhausted, a.State())
	require.Equal(t, a.Stats().TemplateTotal, a.Stats().TemplatePlaced)
}

func TestTemplate_KindsAndAuthoredRotation(t *testing.T) {
	w := newTemplateWorld(t, baseEntries(), 1)
	kinds := map[string]string{}
	for _, d := range growAll(w, 100) {
		kinds[d.AssetID] = d.PlacedKind
	}
	require.Equal(t, PlacedConnective, kinds["tunnel_straight_A.gltf"])
	require.Equal(t, PlacedDecoration, kinds["rock_A.gltf"])
	require.Equal(t, PlacedDecoration, kinds["banner_brown.gltf"])
	require.Equal(t, PlacedStructure, kinds["basemodule_A.gltf"])

	for _, c := range w.Cells() {
		if c.X == 1 && c.Y == 0 {
			require.Equal(t, 90, c.Degrees)
		}
		if c.X == -2 && c.Y == 2 {
			require.Equal(t, "back", c.WallSide)
		}
	}
}

func TestTemplate_SkipsOriginOccupiedByLoad(t *testing.T) {
	w := newTemplateWorld(t, []catalogs.TemplateEntry{
		{X: 0, Y: 0, File: "a"},
		{X: 1, Y: 0, File: "b"},
		{X: 0, Y: 1, File: "c"},
	}, 1)
	saved := `{"version":1,"world_id":"spacebase","policy":"template","template":{"cursor_index":0,"placed_entries":[{"x":0,"y":0,"asset_file":"a","rotation_degrees":0}]}}`
	require.True(t, w.Load([]byte(saved)))
	require.Equal(t, 1, w.Stats().OccupiedCellCount)

	d := w.Grow()
	require.NotNil(t, d)
	require.Equal(t, "b", d.AssetID)
	require.Equal(t, 1, d.X)
	require.Equal(t, 0, d.Y)
}

func TestLoad_CorruptStateStartsFresh(t *testing.T) {
	var buf bytes.Buffer
	w := newCity(t, 1, log.New(&buf, "", 0))
	growAll(w, 5)

	require.False(t, w.Load([]byte(`{"version":1,"world_id":"city","placements":[`)))
	require.Equal(t, 13, w.Stats().OccupiedCellCount)
	require.Contains(t, buf.String(), "warn:")

	require.False(t, w.Load(nil))
	require.False(t, w.Load([]byte(`{"version":1,"world_id":"spacebase","policy":"procedural"}`)))
	require.False(t, w.Load([]byte(`{"version":1,"world_id":"city","policy":"template","template":{"cursor_index":0,"placed_entries":[]}}`)))
	require.Equal(t, StateActive, w.State())
	require.NotNil(t, w.Grow())
}

func TestLoad_SkipsOverlappingRecords(t *testing.T) {
	var buf bytes.Buffer
	w := newCity(t, 1, log.New(&buf, "", 0))
	saved := `{"version":1,"world_id":"city","policy":"procedural","placements":[
		{"x":1,"y":1,"asset_id":"shop_blue","orientation":1,"kind":"structure","floors":9,"max_floors":4},
		{"x":0,"y":2,"asset_id":"tree_green","orientation":0,"kind":"decoration"}
	]}`
	require.True(t, w.Load([]byte(saved)))
	st := w.Stats()
	require.Equal(t, 1, st.StructureCount)
	require.Equal(t, 4, st.Floors)
	require.Equal(t, 0, st.Decorations)
	require.Contains(t, buf.String(), "skipped 1")
}

func TestRenderFailure_KeepsPlacement(t *testing.T) {
	var buf bytes.Buffer
	var events []Event
	w := newCity(t, 4, log.New(&buf, "", 0))
	w.SetRenderer(RendererFunc(func(ev Event) error {
		events = append(events, ev)
		if ev.Kind == grid.KindStructure.String() {
			return errors.New("asset missing")
		}
		return nil
	}))

	d := w.Grow()
	require.NotNil(t, d)
	require.Equal(t, 1, w.Stats().StructureCount)
	require.True(t, strings.Contains(buf.String(), "warn: world city: render placed"))
	require.Len(t, events, 1)
	require.Equal(t, EventPlaced, events[0].Type)
	require.False(t, events[0].Replay)
	require.Equal(t, "city", events[0].WorldID)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Radius: 1, Strategy: cityStrategy(t)})
	require.Error(t, err)
	_, err = New(Config{ID: "x", Radius: 1})
	require.Error(t, err)
	_, err = New(Config{ID: "x", Strategy: cityStrategy(t)})
	require.Error(t, err)
}

func kindOf(t *testing.T, s string) grid.Kind {
	t.Helper()
	k, ok := grid.ParseKind(s)
	require.True(t, ok, s)
	return k
}
