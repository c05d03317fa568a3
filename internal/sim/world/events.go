package world

import "tinyhabits.city/internal/sim/world/grid"

const (
	EventPlaced   = "placed"
	EventReplaced = "replaced"
	EventFloor    = "floor"
)

// Event is handed to the Renderer after a mutation has committed. Replay
// marks events produced by layout or load replay rather than by growth.
type Event struct {
	Type    string `json:"type"`
	WorldID string `json:"world_id"`
	Seq     uint64 `json:"seq"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Kind    string `json:"kind"`
	AssetID string `json:"asset_id"`
	Variant string `json:"variant,omitempty"`
	Degrees int    `json:"degrees"`
	Floors  int    `json:"floors,omitempty"`
	Replay  bool   `json:"replay,omitempty"`
}

// Renderer draws committed cells. An error means the visual could not be
// produced; the placement itself is never rolled back.
type Renderer interface {
	Render(ev Event) error
}

type RendererFunc func(ev Event) error

func (f RendererFunc) Render(ev Event) error { return f(ev) }

// MultiRenderer fans an event out to every renderer and returns the first
// error.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(ev Event) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Render(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (w *World) eventFor(typ string, c grid.Coord, replay bool) Event {
	cell := w.grid.Get(c)
	ev := Event{
		Type:    typ,
		X:       c.X,
		Y:       c.Y,
		Kind:    cell.Kind().String(),
		AssetID: grid.AssetOf(cell),
		Degrees: w.degrees(cell),
		Replay:  replay,
	}
	switch v := cell.(type) {
	case *grid.Connective:
		ev.Variant = v.Variant.String()
	case *grid.Structure:
		ev.Floors = v.Floors
	}
	return ev
}

func (w *World) emit(ev Event) {
	w.seq++
	ev.Seq = w.seq
	ev.WorldID = w.cfg.ID
	if w.renderer == nil {
		return
	}
	if err := w.renderer.Render(ev); err != nil {
		w.logger.Printf("warn: world %s: render %s %s at %d,%d: %v", w.cfg.ID, ev.Type, ev.AssetID, ev.X, ev.Y, err)
	}
}
