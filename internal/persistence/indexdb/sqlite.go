package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tinyhabits.city/internal/persistence/snapshot"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
)

// SQLiteStore keeps world state synchronously and indexes growth events
// and snapshots through a batched background writer.
type SQLiteStore struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEventTotal    atomic.Uint64
	dropSnapshotTotal atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	event    world.Event
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	WorldID string
	Grows   uint64
	Path    string
	Policy  string
	Cells   int
}

type QueueStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventTotal    uint64 `json:"drop_event_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS world_state (
			key TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS growth_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			kind TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			variant TEXT,
			degrees INTEGER NOT NULL,
			floors INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_growth_events_world ON growth_events(world_id, id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			world_id TEXT NOT NULL,
			grows INTEGER NOT NULL,
			path TEXT NOT NULL,
			policy TEXT NOT NULL,
			cells INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (world_id, grows)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) LoadState(ctx context.Context, key string) ([]byte, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM world_state WHERE key=?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, key string, b []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("indexdb closed")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO world_state(key,digest,json,updated_at) VALUES(?,?,?,?)`,
		key, sha256Hex(b), string(b), now())
	return err
}

// Render indexes one growth event. Replay events are skipped; they repeat
// placements that were indexed when they first happened.
func (s *SQLiteStore) Render(ev world.Event) error {
	if s == nil || s.closed.Load() || ev.Replay {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		// Drop if the writer falls behind; JSONL logs remain the source of truth.
		s.dropEventTotal.Add(1)
	}
	return nil
}

func (s *SQLiteStore) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		WorldID: snap.Header.WorldID,
		Grows:   snap.Header.Grows,
		Path:    path,
		Policy:  snap.Header.Policy,
		Cells:   snap.Header.Cells,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshotTotal.Add(1)
	}
}

// Flush waits until every queued write has been committed.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) Stats() QueueStats {
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEventTotal.Load(),
		DropSnapshotTotal: s.dropSnapshotTotal.Load(),
	}
}

// GrowthEvents returns up to limit indexed events of worldID, oldest first.
func (s *SQLiteStore) GrowthEvents(ctx context.Context, worldID string, limit int) ([]world.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,type,x,y,kind,asset_id,COALESCE(variant,''),degrees,floors FROM growth_events WHERE world_id=? ORDER BY id LIMIT ?`,
		worldID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.Event
	for rows.Next() {
		ev := world.Event{WorldID: worldID}
		var seq int64
		if err := rows.Scan(&seq, &ev.Type, &ev.X, &ev.Y, &ev.Kind, &ev.AssetID, &ev.Variant, &ev.Degrees, &ev.Floors); err != nil {
			return nil, err
		}
		ev.Seq = uint64(seq)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "assets.json")); err == nil {
			rows = append(rows, kv{name: "assets", digest: cats.Assets.Digest, json: b})
		}
	}
	// Map keys marshal sorted, so this is stable.
	if b, _ := json.Marshal(cats.Templates.ByName); len(b) > 0 {
		rows = append(rows, kv{name: "templates", digest: cats.Templates.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		rows = append(rows, kv{name: "tuning", digest: sha256Hex(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	ts := now()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO growth_events(world_id,seq,type,x,y,kind,asset_id,variant,degrees,floors,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(world_id,grows,path,policy,cells,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 500
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	// The pool has a single connection shared with SaveState, so a batch
	// never stays open once the queue is drained.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			if insertEvent != nil {
				if _, err := tx.Stmt(insertEvent).Exec(
					ev.WorldID,
					int64(ev.Seq),
					ev.Type,
					ev.X, ev.Y,
					ev.Kind,
					ev.AssetID,
					ev.Variant,
					ev.Degrees,
					ev.Floors,
					now(),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.WorldID,
					int64(sn.Grows),
					sn.Path,
					sn.Policy,
					sn.Cells,
					now(),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
