package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	city, ok := c.AssetSet("city")
	if !ok {
		t.Fatalf("missing city asset set")
	}
	if city.Tiers.Empty() || len(city.Decorations) == 0 || len(city.Parts) != 2 {
		t.Fatalf("city set incomplete: %+v", city)
	}
	sb, ok := c.Template("spacebase")
	if !ok || len(sb) == 0 {
		t.Fatalf("missing spacebase template")
	}
	d, ok := c.Template("dungeon")
	if !ok || len(d) != 40 {
		t.Fatalf("dungeon template: ok=%v len=%d", ok, len(d))
	}
	if !d[0].WallMount || d[0].WallSide != "back" {
		t.Fatalf("expected first dungeon entry to be wall mounted: %+v", d[0])
	}
	if c.Assets.Digest == "" || c.Templates.Digest == "" {
		t.Fatalf("missing digests")
	}
}

func TestLoad_RejectsDuplicateTemplateCoordinate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets.json"), `{"asset_sets":[{"id":"x","tiers":{},"connective":{},"kind_rules":{}}]}`)
	writeFile(t, filepath.Join(dir, "templates", "bad.json"), `[{"x":0,"y":0,"file":"a"},{"x":0,"y":0,"file":"b"}]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected duplicate coordinate error")
	}
}

func TestLoad_RejectsBadDecorationWeight(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets.json"), `{"asset_sets":[{"id":"x","tiers":{},"decorations":[{"id":"tree","weight":0}],"connective":{},"kind_rules":{}}]}`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected weight error")
	}
}

func TestLoad_MissingTemplatesDirIsAllowed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets.json"), `{"asset_sets":[]}`)
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Templates.ByName) != 0 {
		t.Fatalf("expected no templates")
	}
}

func TestKindRules(t *testing.T) {
	r := KindRules{ConnectivePrefixes: []string{"tunnel_"}, DecorationPrefixes: []string{"rock_", ""}}
	if !r.IsConnective("tunnel_straight_A.gltf") || r.IsConnective("basemodule_A.gltf") {
		t.Fatalf("connective prefix mismatch")
	}
	if !r.IsDecoration("rock_A.gltf") || r.IsDecoration("basemodule_A.gltf") {
		t.Fatalf("decoration prefix mismatch")
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
