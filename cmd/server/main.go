package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "tinyhabits.city/internal/persistence/log"
	"tinyhabits.city/internal/protocol"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/multiworld"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
	"tinyhabits.city/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "world variants config (default: <configs>/worlds.yaml)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldID    = flag.String("world", "", "world to activate at startup (default: worlds.yaml default_world_id)")
		disableDB  = flag.Bool("disable_db", false, "keep world state in memory and skip the growth index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	wp := strings.TrimSpace(*worldsPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "worlds.yaml")
		if _, err := os.Stat(wp); err != nil {
			logger.Printf("worlds config not found (%s); using built-in variants", wp)
			wp = ""
		}
	}
	cfg, err := multiworld.Load(wp)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}
	rs, err := openRuntimeStore(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	if rs.Index != nil {
		if err := rs.Index.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("warn: index: upsert catalogs: %v", err)
		}
	}

	opts := multiworld.Options{
		Logger:          logger,
		SnapshotDir:     filepath.Join(*dataDir, "snapshots"),
		SnapshotEvery:   tune.SnapshotEveryGrows,
		PersistDebounce: time.Duration(envInt("TH_PERSIST_DEBOUNCE_MS", 200)) * time.Millisecond,
	}
	if rs.Index != nil {
		opts.OnSnapshot = rs.Index.RecordSnapshot
	}
	mgr, err := multiworld.NewManager(cfg, tune, cats, rs.Store, opts)
	if err != nil {
		logger.Fatalf("create worlds: %v", err)
	}

	wsSrv := ws.NewServer(mgr, protocol.CatalogDigests{
		AssetsDigest:    cats.Assets.Digest,
		TemplatesDigest: cats.Templates.Digest,
	}, logger)
	growthLog := persistlog.NewGrowthLogger(*dataDir)
	renderers := world.MultiRenderer{wsSrv, growthLog}
	if rs.Index != nil {
		renderers = append(renderers, rs.Index)
	}
	mgr.SetRenderer(renderers)

	ctx, cancel := signalContext()
	defer cancel()

	if id := strings.TrimSpace(*worldID); id != "" {
		if _, err := mgr.Activate(ctx, id); err != nil {
			logger.Fatalf("activate %s: %v", id, err)
		}
	}

	enableAdminHTTP := envBool("TH_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	srv := &http.Server{
		Addr:              *addr,
		Handler:           buildMux(mgr, wsSrv, rs.Index, logger, enableAdminHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (active=%s worlds=%d)", *addr, mgr.Active(), len(mgr.WorldIDs()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	shutdown(mgr, rs, growthLog, logger)
}

func shutdown(mgr *multiworld.Manager, rs runtimeStore, growthLog *persistlog.GrowthLogger, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.FlushState(ctx); err != nil {
		logger.Printf("warn: flush world state: %v", err)
	}
	mgr.Close()
	if rs.Index != nil {
		if err := rs.Index.Flush(ctx); err != nil {
			logger.Printf("warn: flush index: %v", err)
		}
	}
	if err := rs.Close(); err != nil {
		logger.Printf("warn: close store: %v", err)
	}
	if err := growthLog.Close(); err != nil {
		logger.Printf("warn: close growth log: %v", err)
	}
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
