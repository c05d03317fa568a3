package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tinyhabits.city/internal/persistence/indexdb"
	"tinyhabits.city/internal/sim/multiworld"
)

// runtimeStore holds the world state store and, for the sqlite backend, the
// growth index that shares its database.
type runtimeStore struct {
	Store multiworld.Store
	Index *indexdb.SQLiteStore
}

func (r runtimeStore) Close() error {
	if r.Index == nil {
		return nil
	}
	return r.Index.Close()
}

func openRuntimeStore(dataDir string, disableDB bool) (runtimeStore, error) {
	if disableDB {
		return runtimeStore{Store: multiworld.NewMemoryStore()}, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TH_STORE_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory", "none", "off":
		return runtimeStore{Store: multiworld.NewMemoryStore()}, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.db"))
		if err != nil {
			return runtimeStore{}, err
		}
		return runtimeStore{Store: idx, Index: idx}, nil
	default:
		return runtimeStore{}, fmt.Errorf("unsupported TH_STORE_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
