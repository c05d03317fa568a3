package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleProcedural() StateV1 {
	return StateV1{
		Version: Version,
		WorldID: "city",
		Policy:  "procedural",
		Placements: []PlacementV1{
			{X: 1, Y: 1, AssetID: "shop_blue", Orientation: 3, Kind: "structure", Floors: 2, MaxFloors: 4, Parts: []string{"floor_tan", "roof_flat_tan"}},
			{X: -2, Y: 3, AssetID: "tree_green", Kind: "decoration"},
		},
	}
}

func TestEncodeDecode_Procedural(t *testing.T) {
	b, err := Encode(sampleProcedural())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.WorldID != "city" || len(got.Placements) != 2 || got.Placements[0].Floors != 2 {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestDecode_RejectsCorruptState(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"version":1,`,
		"wrong version":   `{"version":2,"world_id":"city","policy":"procedural"}`,
		"unknown policy":  `{"version":1,"world_id":"city","policy":"random"}`,
		"bad kind":        `{"version":1,"world_id":"city","policy":"procedural","placements":[{"x":0,"y":0,"asset_id":"a","kind":"connective"}]}`,
		"float coord":     `{"version":1,"world_id":"city","policy":"procedural","placements":[{"x":0.5,"y":0,"asset_id":"a","kind":"structure"}]}`,
		"template absent": `{"version":1,"world_id":"spacebase","policy":"template"}`,
		"negative cursor": `{"version":1,"world_id":"spacebase","policy":"template","template":{"cursor_index":-1,"placed_entries":[]}}`,
		"array":           `[]`,
	}
	for name, in := range cases {
		if _, err := Decode([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestDecode_Template(t *testing.T) {
	in := `{"version":1,"world_id":"spacebase","policy":"template","template":{"cursor_index":2,"placed_entries":[{"x":0,"y":0,"asset_file":"basemodule_E.gltf","rotation_degrees":90}]}}`
	got, err := Decode([]byte(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Template == nil || got.Template.CursorIndex != 2 || got.Template.PlacedEntries[0].RotationDegrees != 90 {
		t.Fatalf("unexpected template: %+v", got.Template)
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "city-7.snap.zst")
	in := SnapshotV1{
		Header: Header{WorldID: "city", Policy: "procedural", Grows: 7, Cells: 2},
		State:  sampleProcedural(),
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Version != Version || got.Header.Grows != 7 {
		t.Fatalf("header: %+v", got.Header)
	}
	if len(got.State.Placements) != 2 || got.State.Placements[1].AssetID != "tree_green" {
		t.Fatalf("state: %+v", got.State)
	}

	b, err := ReadStateBytes(path)
	if err != nil {
		t.Fatalf("state bytes: %v", err)
	}
	if _, err := Decode(b); err != nil {
		t.Fatalf("decode state bytes: %v", err)
	}
}

func TestReadStateBytes_PlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	b, _ := Encode(sampleProcedural())
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadStateBytes(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(b) {
		t.Fatalf("plain json changed")
	}
}
