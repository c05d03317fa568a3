package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "tinyhabits.city/internal/persistence/log"
	"tinyhabits.city/internal/persistence/snapshot"
	"tinyhabits.city/internal/sim/catalogs"
	"tinyhabits.city/internal/sim/multiworld"
	"tinyhabits.city/internal/sim/tuning"
	"tinyhabits.city/internal/sim/world"
)

func main() {
	var (
		statePath  = flag.String("state", "", "path to .snap.zst or JSON world state")
		configDir  = flag.String("configs", "./configs", "config directory")
		worldsPath = flag.String("worlds", "", "world variants config (default: <configs>/worlds.yaml)")
		grow       = flag.Int("grow", 0, "grow N more steps after restoring")
		outPath    = flag.String("out", "", "write the resulting state as JSON (optional)")
		eventsDir  = flag.String("events", "", "events dir containing growth-*.jsonl.zst to summarize (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags|log.Lmicroseconds)

	if *statePath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -state or -events")
		os.Exit(2)
	}

	if *statePath != "" {
		if err := replayState(*statePath, *configDir, *worldsPath, *grow, *outPath, logger); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	if *eventsDir != "" {
		if err := summarizeEvents(*eventsDir); err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
	}
}

func replayState(path, configDir, worldsPath string, grow int, outPath string, logger *log.Logger) error {
	raw, err := snapshot.ReadStateBytes(path)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	st, err := snapshot.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	cats, err := catalogs.Load(configDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if worldsPath == "" {
		worldsPath = filepath.Join(configDir, "worlds.yaml")
		if _, err := os.Stat(worldsPath); err != nil {
			worldsPath = ""
		}
	}
	cfg, err := multiworld.Load(worldsPath)
	if err != nil {
		return fmt.Errorf("load worlds config: %w", err)
	}
	spec, ok := cfg.WorldSpecByID(st.WorldID)
	if !ok {
		return fmt.Errorf("state world %q is not configured", st.WorldID)
	}

	w, err := multiworld.BuildWorld(spec, tune, cats, logger)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	if !w.Load(raw) {
		return fmt.Errorf("state for %s was rejected", st.WorldID)
	}

	fi, _ := os.Stat(path)
	size := uint64(0)
	if fi != nil {
		size = uint64(fi.Size())
	}
	fmt.Printf("state v%d world=%s policy=%s file=%s (%s)\n", st.Version, st.WorldID, st.Policy, filepath.Base(path), humanize.Bytes(size))
	printStats("restored", w.Stats())

	grown := 0
	for i := 0; i < grow; i++ {
		if w.Grow() == nil {
			break
		}
		grown++
	}
	if grow > 0 {
		fmt.Printf("grew %s of %s requested steps\n", humanize.Comma(int64(grown)), humanize.Comma(int64(grow)))
		printStats("after grow", w.Stats())
	}

	if outPath == "" {
		return nil
	}
	b, err := w.SaveBytes()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s)\n", outPath, humanize.Bytes(uint64(len(b))))
	return nil
}

func printStats(label string, s world.Stats) {
	fmt.Printf("%s: state=%s structures=%s floors=%s decorations=%s connective=%s cells=%s",
		label, s.State,
		humanize.Comma(int64(s.StructureCount)), humanize.Comma(int64(s.Floors)),
		humanize.Comma(int64(s.Decorations)), humanize.Comma(int64(s.Connective)),
		humanize.Comma(int64(s.OccupiedCellCount)))
	if s.TemplateTotal > 0 {
		fmt.Printf(" template=%d/%d", s.TemplatePlaced, s.TemplateTotal)
	}
	fmt.Println()
}

func listGrowthFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "growth-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

type growthSummary struct {
	Files   int
	Records int
	ByWorld map[string]map[string]int
	First   time.Time
	Last    time.Time
}

func summarizeGrowth(files []string) (growthSummary, error) {
	sum := growthSummary{ByWorld: map[string]map[string]int{}}
	for _, path := range files {
		recs, err := persistlog.ReadGrowthLog(path)
		if err != nil {
			return sum, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		sum.Files++
		for _, r := range recs {
			sum.Records++
			byType := sum.ByWorld[r.WorldID]
			if byType == nil {
				byType = map[string]int{}
				sum.ByWorld[r.WorldID] = byType
			}
			byType[r.Type]++
			ts, err := time.Parse(time.RFC3339Nano, r.TS)
			if err != nil {
				continue
			}
			if sum.First.IsZero() || ts.Before(sum.First) {
				sum.First = ts
			}
			if ts.After(sum.Last) {
				sum.Last = ts
			}
		}
	}
	return sum, nil
}

func summarizeEvents(dir string) error {
	files, err := listGrowthFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no growth files found in %s", dir)
	}
	sum, err := summarizeGrowth(files)
	if err != nil {
		return err
	}
	fmt.Printf("growth log: files=%d events=%s", sum.Files, humanize.Comma(int64(sum.Records)))
	if !sum.First.IsZero() {
		fmt.Printf(" first=%s last=%s", humanize.Time(sum.First), humanize.Time(sum.Last))
	}
	fmt.Println()

	worlds := make([]string, 0, len(sum.ByWorld))
	for id := range sum.ByWorld {
		worlds = append(worlds, id)
	}
	sort.Strings(worlds)
	for _, id := range worlds {
		types := make([]string, 0, len(sum.ByWorld[id]))
		for typ := range sum.ByWorld[id] {
			types = append(types, typ)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, typ := range types {
			parts = append(parts, fmt.Sprintf("%s=%s", typ, humanize.Comma(int64(sum.ByWorld[id][typ]))))
		}
		fmt.Printf("  %s: %s\n", id, strings.Join(parts, " "))
	}
	return nil
}
