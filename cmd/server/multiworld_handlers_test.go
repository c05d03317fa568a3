package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tinyhabits.city/internal/persistence/indexdb"
	"tinyhabits.city/internal/protocol"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/multiworld"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
	"tinyhabits.city/internal/transport/ws"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func newTestServerStack(t *testing.T, store multiworld.Store, idx *indexdb.SQLiteStore) (*multiworld.Manager, *ws.Server) {
	t.Helper()
	root := findRepoRootForServerTests(t)
	cats, err := catalogs.Load(filepath.Join(root, "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	cfg, err := multiworld.Load(filepath.Join(root, "configs", "worlds.yaml"))
	if err != nil {
		t.Fatalf("load worlds: %v", err)
	}
	mgr, err := multiworld.NewManager(cfg, tuning.Defaults(), cats, store, multiworld.Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(mgr.Close)

	wsSrv := ws.NewServer(mgr, protocol.CatalogDigests{}, nil)
	renderers := world.MultiRenderer{wsSrv}
	if idx != nil {
		renderers = append(renderers, idx)
	}
	mgr.SetRenderer(renderers)
	return mgr, wsSrv
}

func get(t *testing.T, h http.Handler, method, target, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildMux_AdminStateIsLoopbackOnly(t *testing.T) {
	mgr, wsSrv := newTestServerStack(t, multiworld.NewMemoryStore(), nil)
	mux := buildMux(mgr, wsSrv, nil, log.New(io.Discard, "", 0), true)

	if rec := get(t, mux, http.MethodGet, "/admin/v1/state", "8.8.8.8:1234"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-loopback admin state, got %d", rec.Code)
	}

	if _, err := mgr.Grow(context.Background()); err != nil {
		t.Fatalf("grow: %v", err)
	}
	rec := get(t, mux, http.MethodGet, "/admin/v1/state", "127.0.0.1:1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Active string           `json:"active"`
		Stats  world.Stats      `json:"stats"`
		Cells  []world.CellView `json:"cells"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if body.Active != "city" || body.Stats.StructureCount != 1 || len(body.Cells) != body.Stats.OccupiedCellCount {
		t.Fatalf("state=%+v cells=%d", body.Stats, len(body.Cells))
	}

	if rec := get(t, mux, http.MethodGet, "/admin/v1/state?world=atlantis", "127.0.0.1:1234"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown world status=%d", rec.Code)
	}
	if rec := get(t, mux, http.MethodGet, "/admin/v1/save", "127.0.0.1:1234"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET save status=%d", rec.Code)
	}
	if rec := get(t, mux, http.MethodPost, "/admin/v1/save", "127.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestBuildMux_AdminDisabled(t *testing.T) {
	mgr, wsSrv := newTestServerStack(t, multiworld.NewMemoryStore(), nil)
	mux := buildMux(mgr, wsSrv, nil, log.New(io.Discard, "", 0), false)
	if rec := get(t, mux, http.MethodGet, "/admin/v1/state", "127.0.0.1:1234"); rec.Code != http.StatusNotFound {
		t.Fatalf("admin disabled status=%d", rec.Code)
	}
	if rec := get(t, mux, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rec.Code, rec.Body.String())
	}
}

func TestBuildMux_MetricsIncludesWorldAndIndexStats(t *testing.T) {
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	mgr, wsSrv := newTestServerStack(t, idx, idx)
	mux := buildMux(mgr, wsSrv, idx, log.New(io.Discard, "", 0), true)

	for i := 0; i < 2; i++ {
		if _, err := mgr.Grow(context.Background()); err != nil {
			t.Fatalf("grow: %v", err)
		}
	}

	rec := get(t, mux, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`tinyhabits_world_active{world="city"} 1`,
		`tinyhabits_world_active{world="dungeon"} 0`,
		`tinyhabits_world_cells{world="city",kind="structure"} 1`,
		`tinyhabits_world_floors{world="city"} 2`,
		`tinyhabits_world_cells{world="city",kind="connective"} 29`,
		`tinyhabits_world_grows_total{world="city"} 2`,
		`tinyhabits_index_queue_capacity`,
		`tinyhabits_ws_sessions 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	rec = get(t, mux, http.MethodGet, "/admin/v1/events?limit=10", "127.0.0.1:1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("events status=%d body=%s", rec.Code, rec.Body.String())
	}
	var evs struct {
		World  string        `json:"world"`
		Events []world.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if evs.World != "city" || len(evs.Events) == 0 {
		t.Fatalf("events=%+v", evs)
	}
}

func TestOpenRuntimeStore_Backends(t *testing.T) {
	dir := t.TempDir()

	rs, err := openRuntimeStore(dir, true)
	if err != nil || rs.Index != nil {
		t.Fatalf("disable_db: rs=%+v err=%v", rs, err)
	}
	if _, ok := rs.Store.(*multiworld.MemoryStore); !ok {
		t.Fatalf("disable_db store=%T", rs.Store)
	}

	t.Setenv("TH_STORE_BACKEND", "memory")
	rs, err = openRuntimeStore(dir, false)
	if err != nil || rs.Index != nil {
		t.Fatalf("memory backend: rs=%+v err=%v", rs, err)
	}

	t.Setenv("TH_STORE_BACKEND", "sqlite")
	rs, err = openRuntimeStore(dir, false)
	if err != nil || rs.Index == nil {
		t.Fatalf("sqlite backend: err=%v", err)
	}
	_ = rs.Close()
	if _, err := os.Stat(filepath.Join(dir, "index.db")); err != nil {
		t.Fatalf("index.db not created: %v", err)
	}

	t.Setenv("TH_STORE_BACKEND", "redis")
	if _, err := openRuntimeStore(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TH_TEST_BOOL", "false")
	if envBool("TH_TEST_BOOL", true) {
		t.Fatalf("envBool ignored value")
	}
	t.Setenv("TH_TEST_BOOL", "maybe")
	if !envBool("TH_TEST_BOOL", true) {
		t.Fatalf("envBool should fall back on parse error")
	}
	t.Setenv("TH_TEST_INT", "-5")
	if envInt("TH_TEST_INT", 200) != 200 {
		t.Fatalf("envInt should reject non-positive values")
	}
	t.Setenv("TH_TEST_INT", "50")
	if envInt("TH_TEST_INT", 200) != 50 {
		t.Fatalf("envInt ignored value")
	}
}
