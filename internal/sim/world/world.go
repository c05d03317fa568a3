package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"

	"tinyhabits.city/internal/sim/world/grid"
	"tinyhabits.city/internal/sim/world/logic/connect"
	"tinyhabits.city/internal/sim/world/placement"
)

type State int

const (
	StateActive State = iota
	StateExhausted
)

func (s State) String() string {
	if s == StateExhausted {
		return "exhausted"
	}
	return "active"
}

// Placed kinds reported in a Descriptor.
const (
	PlacedStructure  = "structure"
	PlacedFloor      = "floor"
	PlacedDecoration = "decoration"
	PlacedConnective = "connective"
)

// Descriptor describes the single placement made by one step.
type Descriptor struct {
	PlacedKind  string `json:"placed_kind"`
	DisplayName string `json:"display_name"`
	AssetID     string `json:"asset_id"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Floors      int    `json:"floors,omitempty"`
}

type Config struct {
	ID     string
	Radius int

	Strategy   placement.Strategy
	Connective connect.Config

	// Rand overrides the generator seeded from Seed.
	Seed int64
	Rand *rand.Rand

	Logger   *log.Logger
	Renderer Renderer
}

// World owns one settlement grid and its growth sequence. It is not safe
// for concurrent use.
type World struct {
	cfg    Config
	logger *log.Logger
	rng    *rand.Rand

	grid  *grid.Grid
	state State
	seq   uint64
	grows uint64

	renderer Renderer
}

func New(cfg Config) (*World, error) {
	if cfg.ID == "" {
		return nil, errors.New("world: missing id")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("world %s: missing strategy", cfg.ID)
	}
	if cfg.Radius <= 0 {
		return nil, fmt.Errorf("world %s: radius must be > 0", cfg.ID)
	}
	w := &World{
		cfg:      cfg,
		logger:   cfg.Logger,
		rng:      cfg.Rand,
		renderer: cfg.Renderer,
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard, "", 0)
	}
	if w.rng == nil {
		w.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	w.reset()
	return w, nil
}

func (w *World) ID() string                   { return w.cfg.ID }
func (w *World) Radius() int                  { return w.cfg.Radius }
func (w *World) Policy() placement.Policy     { return w.cfg.Strategy.Policy() }
func (w *World) State() State                 { return w.state }
func (w *World) Grows() uint64                { return w.grows }
func (w *World) SetRenderer(r Renderer)       { w.renderer = r }
func (w *World) Strategy() placement.Strategy { return w.cfg.Strategy }

// reset discards every cell and lays the connective layout down again.
func (w *World) reset() {
	w.grid = grid.New(w.cfg.Radius)
	w.state = StateActive
	w.grows = 0
	if t, ok := w.cfg.Strategy.(*placement.Template); ok {
		t.Reset()
	}
	if l, ok := w.cfg.Strategy.(placement.Layouter); ok {
		for _, c := range l.LayoutCoords(w.cfg.Radius) {
			w.commit(placement.Placement{Coord: c, Cell: &grid.Connective{}}, true)
		}
	}
}

// Grow advances the growth sequence by at most one placement. It returns
// nil once the world is exhausted.
func (w *World) Grow() *Descriptor {
	if w.state == StateExhausted {
		return nil
	}
	for {
		pl, ok := w.cfg.Strategy.Next(w.grid, w.rng)
		if !ok {
			w.state = StateExhausted
			w.logger.Printf("world %s: exhausted after %d grows (%d cells)", w.cfg.ID, w.grows, w.grid.Len())
			return nil
		}
		if d, ok := w.commit(pl, false); ok {
			w.grows++
			return d
		}
		// Only authored entries can be rejected (out of bounds); each one
		// consumes the template cursor, so this loop ends.
		w.logger.Printf("warn: world %s: rejected placement at %d,%d", w.cfg.ID, pl.Coord.X, pl.Coord.Y)
	}
}

// Decorate places one decoration when the strategy supports it. It never
// changes the growth state.
func (w *World) Decorate() *Descriptor {
	dec, ok := w.cfg.Strategy.(placement.Decorator)
	if !ok {
		return nil
	}
	pl, ok := dec.NextDecoration(w.grid, w.rng)
	if !ok {
		return nil
	}
	d, _ := w.commit(pl, false)
	return d
}

// commit is the single mutation primitive shared by live growth, layout
// and load replay.
func (w *World) commit(pl placement.Placement, replay bool) (*Descriptor, bool) {
	c := pl.Coord
	if pl.Floor {
		s, ok := w.grid.Get(c).(*grid.Structure)
		if !ok || !s.Growable() {
			return nil, false
		}
		w.grid.Refresh(c, func(grid.Cell) { s.Floors++ })
		w.emit(w.eventFor(EventFloor, c, replay))
		return &Descriptor{PlacedKind: PlacedFloor, DisplayName: placement.DisplayName(s.AssetID), AssetID: s.AssetID, X: c.X, Y: c.Y, Floors: s.Floors}, true
	}

	switch cell := pl.Cell.(type) {
	case *grid.Connective:
		changed, ok := connect.Place(w.grid, c, cell, w.cfg.Connective)
		if !ok {
			return nil, false
		}
		w.emit(w.eventFor(EventPlaced, c, replay))
		for _, n := range changed {
			w.emit(w.eventFor(EventReplaced, n, replay))
		}
		asset := grid.AssetOf(w.grid.Get(c))
		return &Descriptor{PlacedKind: PlacedConnective, DisplayName: placement.DisplayName(asset), AssetID: asset, X: c.X, Y: c.Y}, true
	case *grid.Structure, *grid.Decoration:
		if !w.grid.Set(c, cell) {
			return nil, false
		}
		w.emit(w.eventFor(EventPlaced, c, replay))
		kind := PlacedStructure
		floors := 0
		if s, ok := cell.(*grid.Structure); ok {
			floors = s.Floors
		} else {
			kind = PlacedDecoration
		}
		asset := grid.AssetOf(cell)
		return &Descriptor{PlacedKind: kind, DisplayName: placement.DisplayName(asset), AssetID: asset, X: c.X, Y: c.Y, Floors: floors}, true
	default:
		return nil, false
	}
}

// degrees is the renderer rotation of cell.
func (w *World) degrees(cell grid.Cell) int {
	if conn, ok := cell.(*grid.Connective); ok && !conn.Authored {
		return w.cfg.Connective.Degrees(conn.Orientation.Turns())
	}
	return grid.OrientationOf(cell).Degrees()
}

func resolveAll(w *World) []grid.Coord {
	changed := connect.ResolveAll(w.grid, w.cfg.Connective)
	for _, c := range changed {
		w.emit(w.eventFor(EventReplaced, c, false))
	}
	return changed
}
