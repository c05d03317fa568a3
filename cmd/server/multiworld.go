package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tinyhabits.city/internal/persistence/indexdb"
	"tinyhabits.city/internal/sim/multiworld"
	"tinyhabits.city/internal/sim/world"
	"tinyhabits.city/internal/transport/ws"
)

// buildMux wires the HTTP surface. idx may be nil when the memory backend is
// in use.
func buildMux(mgr *multiworld.Manager, wsSrv *ws.Server, idx *indexdb.SQLiteStore, logger *log.Logger, enableAdminHTTP bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, mgr, wsSrv, idx)
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (TH_ENABLE_ADMIN_HTTP=false)")
		return mux
	}

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		id := strings.TrimSpace(r.URL.Query().Get("world"))
		st, err := mgr.Stats(id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		cells, err := mgr.Cells(st.WorldID)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Active string           `json:"active"`
			Stats  world.Stats      `json:"stats"`
			Cells  []world.CellView `json:"cells"`
		}{
			Active: mgr.Active(),
			Stats:  st,
			Cells:  cells,
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/save", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := mgr.Save(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "world": st.WorldID, "grows": st.Grows})
	})
	mux.HandleFunc("/admin/v1/events", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "growth index disabled", http.StatusNotFound)
			return
		}
		id := strings.TrimSpace(r.URL.Query().Get("world"))
		if id == "" {
			id = mgr.Active()
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}
		if err := idx.Flush(r.Context()); err != nil {
			logger.Printf("warn: admin events: flush index: %v", err)
		}
		evs, err := idx.GrowthEvents(r.Context(), id, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"world": id, "events": evs})
	})
	return mux
}

func writeMetrics(rw http.ResponseWriter, mgr *multiworld.Manager, wsSrv *ws.Server, idx *indexdb.SQLiteStore) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP tinyhabits_ws_sessions Connected websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_ws_sessions gauge\n")
	fmt.Fprintf(rw, "tinyhabits_ws_sessions %d\n", wsSrv.Sessions())

	fmt.Fprintf(rw, "# HELP tinyhabits_ws_requests_total Protocol requests handled.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_ws_requests_total counter\n")
	fmt.Fprintf(rw, "tinyhabits_ws_requests_total %d\n", wsSrv.RequestsTotal())

	fmt.Fprintf(rw, "# HELP tinyhabits_ws_dropped_events_total Events dropped on slow sessions.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_ws_dropped_events_total counter\n")
	fmt.Fprintf(rw, "tinyhabits_ws_dropped_events_total %d\n", wsSrv.DroppedEvents())

	active := mgr.Active()
	fmt.Fprintf(rw, "# HELP tinyhabits_world_active Whether the world is the active one.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_world_active gauge\n")
	for _, id := range mgr.WorldIDs() {
		v := 0
		if id == active {
			v = 1
		}
		fmt.Fprintf(rw, "tinyhabits_world_active{world=%q} %d\n", id, v)
	}

	stats := make([]world.Stats, 0, len(mgr.WorldIDs()))
	for _, id := range mgr.WorldIDs() {
		if st, err := mgr.Stats(id); err == nil {
			stats = append(stats, st)
		}
	}

	fmt.Fprintf(rw, "# HELP tinyhabits_world_cells Occupied cells by kind.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_world_cells gauge\n")
	for _, st := range stats {
		fmt.Fprintf(rw, "tinyhabits_world_cells{world=%q,kind=%q} %d\n", st.WorldID, "structure", st.StructureCount)
		fmt.Fprintf(rw, "tinyhabits_world_cells{world=%q,kind=%q} %d\n", st.WorldID, "decoration", st.Decorations)
		fmt.Fprintf(rw, "tinyhabits_world_cells{world=%q,kind=%q} %d\n", st.WorldID, "connective", st.Connective)
	}

	fmt.Fprintf(rw, "# HELP tinyhabits_world_floors Total structure floors.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_world_floors gauge\n")
	for _, st := range stats {
		fmt.Fprintf(rw, "tinyhabits_world_floors{world=%q} %d\n", st.WorldID, st.Floors)
	}

	fmt.Fprintf(rw, "# HELP tinyhabits_world_grows_total Successful grow steps.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_world_grows_total counter\n")
	for _, st := range stats {
		fmt.Fprintf(rw, "tinyhabits_world_grows_total{world=%q} %d\n", st.WorldID, st.Grows)
	}

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP tinyhabits_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "tinyhabits_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP tinyhabits_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "tinyhabits_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP tinyhabits_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE tinyhabits_index_dropped_total counter\n")
	fmt.Fprintf(rw, "tinyhabits_index_dropped_total{kind=%q} %d\n", "event", s.DropEventTotal)
	fmt.Fprintf(rw, "tinyhabits_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
