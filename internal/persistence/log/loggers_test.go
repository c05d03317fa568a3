package log

import (
	"path/filepath"
	"testing"
	"time"

	"tinyhabits.city/internal/sim/world"
)

func TestGrowthLogger_WritesLiveEventsOnly(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	l := NewGrowthLogger(dir)
	l.now = func() time.Time { return at }
	l.w.now = func() time.Time { return at }

	evs := []world.Event{
		{Type: world.EventPlaced, WorldID: "city", Seq: 1, Kind: "connective", AssetID: "road_straight", Replay: true},
		{Type: world.EventPlaced, WorldID: "city", Seq: 30, X: 2, Y: 1, Kind: "structure", AssetID: "office_tan", Floors: 1},
		{Type: world.EventFloor, WorldID: "city", Seq: 31, X: 2, Y: 1, Kind: "structure", AssetID: "office_tan", Floors: 2},
	}
	for _, ev := range evs {
		if err := l.Render(ev); err != nil {
			t.Fatalf("render: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(dir, "events", "growth-2026-03-01-09.jsonl.zst")
	got, err := ReadGrowthLog(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records=%d want 2", len(got))
	}
	if got[0].Seq != 30 || got[0].AssetID != "office_tan" || got[0].TS != "2026-03-01T09:30:00Z" {
		t.Fatalf("first record: %+v", got[0])
	}
	if got[1].Type != world.EventFloor || got[1].Floors != 2 {
		t.Fatalf("second record: %+v", got[1])
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "growth")
	w.now = func() time.Time { return at }

	if err := w.Write(GrowthRecord{TS: "a", Event: world.Event{Seq: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(GrowthRecord{TS: "b", Event: world.Event{Seq: 2}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for hour, seq := range map[string]uint64{"09": 1, "10": 2} {
		recs, err := ReadGrowthLog(filepath.Join(dir, "growth-2026-03-01-"+hour+".jsonl.zst"))
		if err != nil {
			t.Fatalf("read hour %s: %v", hour, err)
		}
		if len(recs) != 1 || recs[0].Seq != seq {
			t.Fatalf("hour %s records: %+v", hour, recs)
		}
	}
}
