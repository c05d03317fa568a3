package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Assets    AssetCatalog
	Templates TemplateCatalog
}

type AssetCatalog struct {
	ByID   map[string]AssetSet
	Digest string
}

// AssetSet is the visual vocabulary of one world variant.
type AssetSet struct {
	ID          string           `json:"id"`
	Tiers       Tiers            `json:"tiers"`
	Parts       []PartSlot       `json:"parts,omitempty"`
	Decorations []WeightedAsset  `json:"decorations,omitempty"`
	Connective  ConnectiveAssets `json:"connective"`
	KindRules   KindRules        `json:"kind_rules"`
}

// Tiers buckets structure assets by ring distance, innermost first.
type Tiers struct {
	Core      []string `json:"core"`
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
	Outer     []string `json:"outer"`
}

func (t Tiers) Bands() [4][]string {
	return [4][]string{t.Core, t.Primary, t.Secondary, t.Outer}
}

func (t Tiers) Empty() bool {
	return len(t.Core)+len(t.Primary)+len(t.Secondary)+len(t.Outer) == 0
}

// PartSlot is one stacked piece of a modular structure (floor, roof).
type PartSlot struct {
	Slot string   `json:"slot"`
	IDs  []string `json:"ids"`
}

type WeightedAsset struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

type ConnectiveAssets struct {
	Straight string `json:"straight"`
	Corner   string `json:"corner"`
	Tee      string `json:"tee"`
	Cross    string `json:"cross"`
}

// KindRules classifies authored template files by name prefix.
type KindRules struct {
	ConnectivePrefixes []string `json:"connective_prefixes,omitempty"`
	DecorationPrefixes []string `json:"decoration_prefixes,omitempty"`
}

func (r KindRules) IsConnective(file string) bool { return hasAnyPrefix(file, r.ConnectivePrefixes) }
func (r KindRules) IsDecoration(file string) bool { return hasAnyPrefix(file, r.DecorationPrefixes) }

type TemplateCatalog struct {
	ByName map[string][]TemplateEntry
	Digest string
}

// TemplateEntry is one authored placement. Entries are kept in authoring
// order.
type TemplateEntry struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	File      string `json:"file"`
	Rotation  int    `json:"rotation"`
	WallMount bool   `json:"wall_mount,omitempty"`
	WallSide  string `json:"wall_side,omitempty"`
}

var wallSides = map[string]bool{"": true, "back": true, "left": true, "right": true, "front": true}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadAssets(filepath.Join(configDir, "assets.json"), &c.Assets); err != nil {
		return nil, err
	}
	if err := loadTemplates(filepath.Join(configDir, "templates"), &c.Templates); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogs) AssetSet(id string) (AssetSet, bool) {
	if c == nil {
		return AssetSet{}, false
	}
	s, ok := c.Assets.ByID[id]
	return s, ok
}

func (c *Catalogs) Template(name string) ([]TemplateEntry, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.Templates.ByName[name]
	return t, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadAssets(path string, out *AssetCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var doc struct {
		AssetSets []AssetSet `json:"asset_sets"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("assets.json: %w", err)
	}
	out.ByID = map[string]AssetSet{}
	for _, s := range doc.AssetSets {
		if s.ID == "" {
			return fmt.Errorf("assets.json: empty id")
		}
		if _, dup := out.ByID[s.ID]; dup {
			return fmt.Errorf("assets.json: duplicate asset set %q", s.ID)
		}
		for _, d := range s.Decorations {
			if d.ID == "" || d.Weight <= 0 {
				return fmt.Errorf("assets.json: %s: bad decoration %q weight %d", s.ID, d.ID, d.Weight)
			}
		}
		for _, p := range s.Parts {
			if p.Slot == "" || len(p.IDs) == 0 {
				return fmt.Errorf("assets.json: %s: part slot %q has no ids", s.ID, p.Slot)
			}
		}
		out.ByID[s.ID] = s
	}
	return nil
}

func loadTemplates(dir string, out *TemplateCatalog) error {
	out.ByName = map[string][]TemplateEntry{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Procedural-only deployments ship no templates.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		name := strings.TrimSuffix(filepath.Base(p), ".json")
		var list []TemplateEntry
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
		if err := validateTemplate(list); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
		out.ByName[name] = list
	}
	out.Digest = sha256Hex(concat.Bytes())
	return nil
}

func validateTemplate(list []TemplateEntry) error {
	seen := make(map[[2]int]int, len(list))
	for i, e := range list {
		if e.File == "" {
			return fmt.Errorf("entry %d: missing file", i)
		}
		if !wallSides[e.WallSide] {
			return fmt.Errorf("entry %d: bad wall_side %q", i, e.WallSide)
		}
		k := [2]int{e.X, e.Y}
		if j, dup := seen[k]; dup {
			return fmt.Errorf("entry %d: duplicate coordinate (%d,%d) of entry %d", i, e.X, e.Y, j)
		}
		seen[k] = i
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
