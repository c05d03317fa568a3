package multiworld

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tinyhabits.city/internal/persistence/snapshot"
	"tinyhabits.city/internal/protocol"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
)

var (
	ErrWorldNotFound = errors.New("world not found")
	ErrClosed        = errors.New("manager closed")
)

type Runtime struct {
	Spec  WorldSpec
	World *world.World

	completions uint64
}

type Options struct {
	Logger *log.Logger

	// SnapshotDir receives a .snap.zst file every SnapshotEvery grows of a
	// world. Empty disables snapshots.
	SnapshotDir   string
	SnapshotEvery int
	OnSnapshot    func(path string, snap snapshot.SnapshotV1)

	PersistDebounce time.Duration
}

// CompleteResult is the outcome of one habit completion.
type CompleteResult struct {
	WorldID    string            `json:"world_id"`
	Grown      *world.Descriptor `json:"grown,omitempty"`
	Decoration *world.Descriptor `json:"decoration,omitempty"`
	Stats      world.Stats       `json:"stats"`
}

// Manager owns every world variant and serializes access to them. Exactly
// one variant is active; activating another saves the current one first
// and restores the target from its storage key.
type Manager struct {
	mu sync.Mutex

	runtimes  map[string]*Runtime
	manifest  []protocol.WorldRef
	defaultID string
	active    string
	closed    bool

	store  Store
	tune   tuning.Tuning
	logger *log.Logger
	opts   Options

	dirty map[string]bool

	persistDebounce time.Duration
	persistCh       chan struct{}
	persistFlush    chan chan struct{}
	persistStop     chan struct{}
	persistWG       sync.WaitGroup
	closeOnce       sync.Once
}

func NewManager(cfg Config, tune tuning.Tuning, cats *catalogs.Catalogs, store Store, opts Options) (*Manager, error) {
	if cats == nil {
		return nil, fmt.Errorf("nil catalogs")
	}
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runtimes := map[string]*Runtime{}
	for _, spec := range cfg.Worlds {
		w, err := BuildWorld(spec, tune, cats, logger)
		if err != nil {
			return nil, err
		}
		runtimes[spec.ID] = &Runtime{Spec: spec, World: w}
	}
	debounce := opts.PersistDebounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	m := &Manager{
		runtimes:        runtimes,
		manifest:        cfg.Manifest(),
		defaultID:       cfg.DefaultWorldID,
		store:           store,
		tune:            tune,
		logger:          logger,
		opts:            opts,
		dirty:           map[string]bool{},
		persistDebounce: debounce,
		persistCh:       make(chan struct{}, 1),
		persistFlush:    make(chan chan struct{}, 8),
		persistStop:     make(chan struct{}),
	}
	if _, err := m.Activate(context.Background(), cfg.DefaultWorldID); err != nil {
		return nil, err
	}
	m.persistWG.Add(1)
	go m.persistLoop()
	return m, nil
}

func (m *Manager) WorldIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Manifest() []protocol.WorldRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.WorldRef, len(m.manifest))
	copy(out, m.manifest)
	return out
}

func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SetRenderer attaches r to every world.
func (m *Manager) SetRenderer(r world.Renderer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.runtimes {
		rt.World.SetRenderer(r)
	}
}

// Activate makes id the active variant. The previous variant is saved
// synchronously; the target is rebuilt from its stored state. Activating
// the active variant is a no-op.
func (m *Manager) Activate(ctx context.Context, id string) (world.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return world.Stats{}, ErrClosed
	}
	rt := m.runtimes[id]
	if rt == nil {
		return world.Stats{}, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	if m.active == id {
		return rt.World.Stats(), nil
	}
	if prev := m.runtimes[m.active]; prev != nil {
		if err := m.saveLocked(ctx, prev); err != nil {
			return world.Stats{}, err
		}
	}
	b, err := m.store.LoadState(ctx, rt.Spec.StorageKey)
	if err != nil {
		return world.Stats{}, fmt.Errorf("load %s: %w", rt.Spec.StorageKey, err)
	}
	restored := rt.World.Load(b)
	rt.completions = 0
	from := m.active
	m.active = id
	m.logger.Printf("activated world %s (from %q, restored=%v)", id, from, restored)
	return rt.World.Stats(), nil
}

// Complete applies one habit completion to the active world: one growth
// step, plus a decoration on every decorate_every-th completion.
func (m *Manager) Complete(ctx context.Context) (CompleteResult, error) {
	m.mu.Lock()
	rt, err := m.activeLocked(ctx)
	if err != nil {
		m.mu.Unlock()
		return CompleteResult{}, err
	}
	rt.completions++
	res := CompleteResult{WorldID: rt.Spec.ID, Grown: rt.World.Grow()}
	if every := uint64(m.tune.DecorateEvery); every > 0 && rt.completions%every == 0 {
		res.Decoration = rt.World.Decorate()
	}
	res.Stats = rt.World.Stats()
	snap, path := m.afterMutationLocked(rt, res.Grown != nil)
	m.mu.Unlock()

	m.writeSnapshot(path, snap)
	return res, nil
}

func (m *Manager) Grow(ctx context.Context) (*world.Descriptor, error) {
	m.mu.Lock()
	rt, err := m.activeLocked(ctx)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	d := rt.World.Grow()
	snap, path := m.afterMutationLocked(rt, d != nil)
	m.mu.Unlock()

	m.writeSnapshot(path, snap)
	return d, nil
}

func (m *Manager) Decorate(ctx context.Context) (*world.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, err := m.activeLocked(ctx)
	if err != nil {
		return nil, err
	}
	d := rt.World.Decorate()
	if d != nil {
		m.dirty[rt.Spec.ID] = true
		m.schedulePersistLocked()
	}
	return d, nil
}

// Stats reports on id, or on the active world when id is empty.
func (m *Manager) Stats(id string) (world.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, err := m.lookupLocked(id)
	if err != nil {
		return world.Stats{}, err
	}
	return rt.World.Stats(), nil
}

func (m *Manager) Cells(id string) ([]world.CellView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, err := m.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return rt.World.Cells(), nil
}

// Save writes the active world to the store immediately.
func (m *Manager) Save(ctx context.Context) (world.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, err := m.activeLocked(ctx)
	if err != nil {
		return world.Stats{}, err
	}
	if err := m.saveLocked(ctx, rt); err != nil {
		return world.Stats{}, err
	}
	return rt.World.Stats(), nil
}

func (m *Manager) activeLocked(ctx context.Context) (*Runtime, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rt := m.runtimes[m.active]
	if rt == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, m.active)
	}
	return rt, nil
}

func (m *Manager) lookupLocked(id string) (*Runtime, error) {
	if id == "" {
		id = m.active
	}
	rt := m.runtimes[id]
	if rt == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	return rt, nil
}

// afterMutationLocked marks rt dirty and returns a snapshot to write when
// the grow count crossed the snapshot cadence.
func (m *Manager) afterMutationLocked(rt *Runtime, grew bool) (snapshot.SnapshotV1, string) {
	m.dirty[rt.Spec.ID] = true
	m.schedulePersistLocked()
	if !grew || m.opts.SnapshotDir == "" || m.opts.SnapshotEvery <= 0 {
		return snapshot.SnapshotV1{}, ""
	}
	grows := rt.World.Grows()
	if grows%uint64(m.opts.SnapshotEvery) != 0 {
		return snapshot.SnapshotV1{}, ""
	}
	st := rt.World.Save()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: rt.Spec.ID,
			Policy:  st.Policy,
			Grows:   grows,
			Cells:   rt.World.Stats().OccupiedCellCount,
		},
		State: st,
	}
	path := filepath.Join(m.opts.SnapshotDir, rt.Spec.ID, fmt.Sprintf("%010d.snap.zst", grows))
	return snap, path
}

func (m *Manager) writeSnapshot(path string, snap snapshot.SnapshotV1) {
	if path == "" {
		return
	}
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		m.logger.Printf("warn: snapshot %s: %v", path, err)
		return
	}
	if m.opts.OnSnapshot != nil {
		m.opts.OnSnapshot(path, snap)
	}
}

func (m *Manager) saveLocked(ctx context.Context, rt *Runtime) error {
	b, err := rt.World.SaveBytes()
	if err != nil {
		return fmt.Errorf("encode %s: %w", rt.Spec.ID, err)
	}
	if err := m.store.SaveState(ctx, rt.Spec.StorageKey, b); err != nil {
		return fmt.Errorf("save %s: %w", rt.Spec.StorageKey, err)
	}
	delete(m.dirty, rt.Spec.ID)
	return nil
}

func (m *Manager) schedulePersistLocked() {
	if m.persistCh == nil {
		return
	}
	select {
	case m.persistCh <- struct{}{}:
	default:
	}
}

func (m *Manager) persistLoop() {
	defer m.persistWG.Done()
	var timer *time.Timer
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}
	for {
		var timerCh <-chan time.Time
		if timer != nil {
			timerCh = timer.C
		}
		select {
		case <-m.persistStop:
			stopTimer()
			m.persistNow()
			return
		case <-m.persistCh:
			if timer == nil {
				timer = time.NewTimer(m.persistDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.persistDebounce)
			}
		case ack := <-m.persistFlush:
			stopTimer()
			m.persistNow()
			if ack != nil {
				close(ack)
			}
		case <-timerCh:
			stopTimer()
			m.persistNow()
		}
	}
}

// persistNow writes every dirty world. Failures stay dirty for the next
// round.
func (m *Manager) persistNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.saveLocked(ctx, m.runtimes[id])
		cancel()
		if err != nil {
			m.logger.Printf("warn: persist %s: %v", id, err)
		}
	}
}

func (m *Manager) FlushState(ctx context.Context) error {
	if m.persistFlush == nil {
		return nil
	}
	ack := make(chan struct{})
	select {
	case m.persistFlush <- ack:
	case <-m.persistStop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-m.persistStop:
		// The loop persists once more on stop.
		m.persistWG.Wait()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending state and stops the persist loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.persistStop)
		m.persistWG.Wait()
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
	})
}
