package snapshot

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = 1

// StateV1 is the persisted form of one world. Procedural worlds fill
// Placements; template worlds fill Template.
type StateV1 struct {
	Version    int              `json:"version"`
	WorldID    string           `json:"world_id"`
	Policy     string           `json:"policy"`
	Placements []PlacementV1    `json:"placements,omitempty"`
	Template   *TemplateStateV1 `json:"template,omitempty"`
}

// PlacementV1 is one structure or decoration cell. Connective cells are
// regenerated from the world layout and never stored.
type PlacementV1 struct {
	X           int      `json:"x"`
	Y           int      `json:"y"`
	AssetID     string   `json:"asset_id"`
	Orientation int      `json:"orientation"`
	Kind        string   `json:"kind"`
	Floors      int      `json:"floors,omitempty"`
	MaxFloors   int      `json:"max_floors,omitempty"`
	Parts       []string `json:"parts,omitempty"`
}

type TemplateStateV1 struct {
	CursorIndex   int               `json:"cursor_index"`
	PlacedEntries []TemplateEntryV1 `json:"placed_entries"`
}

type TemplateEntryV1 struct {
	X               int    `json:"x"`
	Y               int    `json:"y"`
	AssetFile       string `json:"asset_file"`
	RotationDegrees int    `json:"rotation_degrees"`
}

// Header is the first line of a snapshot file, readable without parsing
// the body.
type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Policy  string `json:"policy"`
	Grows   uint64 `json:"grows"`
	Cells   int    `json:"cells"`
}

type SnapshotV1 struct {
	Header Header  `json:"header"`
	State  StateV1 `json:"state"`
}

//go:embed state.schema.json
var stateSchemaJSON []byte

const stateSchemaURL = "mem://tinyhabits/state.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func stateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(stateSchemaURL, bytes.NewReader(stateSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(stateSchemaURL)
	})
	return schema, schemaErr
}

func Encode(s StateV1) ([]byte, error) {
	if s.Version == 0 {
		s.Version = Version
	}
	return json.Marshal(s)
}

// Decode parses b and checks it against the state schema.
func Decode(b []byte) (StateV1, error) {
	var s StateV1
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return s, fmt.Errorf("state json: %w", err)
	}
	sch, err := stateSchema()
	if err != nil {
		return s, fmt.Errorf("state schema: %w", err)
	}
	if err := sch.Validate(raw); err != nil {
		return s, fmt.Errorf("state invalid: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("state json: %w", err)
	}
	return s, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	body, err := Encode(snap.State)
	if err != nil {
		return fmt.Errorf("state encode: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	hl, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(bytes.TrimSpace(hl), &snap.Header); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return snap, err
	}
	snap.State, err = Decode(body)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

// ReadStateBytes returns the state body of a snapshot file, or the file
// itself when it is plain JSON.
func ReadStateBytes(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '{' {
		return raw, nil
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return Encode(snap.State)
}
