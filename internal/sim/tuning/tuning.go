package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Seed int64 `yaml:"seed"`

	// MaxDistance is the procedural candidate weight ceiling.
	MaxDistance         int `yaml:"max_distance"`
	ConnectiveOffsetDeg int `yaml:"connective_offset_deg"`
	DecorateEvery       int `yaml:"decorate_every"`
	SnapshotEveryGrows  int `yaml:"snapshot_every_grows"`

	FloorsMin int `yaml:"floors_min"`
	FloorsMax int `yaml:"floors_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		Seed:                1,
		MaxDistance:         20,
		ConnectiveOffsetDeg: 180,
		DecorateEvery:       3,
		SnapshotEveryGrows:  25,
		FloorsMin:           3,
		FloorsMax:           5,
	}
}

// Load reads path over Defaults. A missing file yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be > 0")
	}
	if t.DecorateEvery < 0 {
		return fmt.Errorf("decorate_every must be >= 0")
	}
	if t.SnapshotEveryGrows < 0 {
		return fmt.Errorf("snapshot_every_grows must be >= 0")
	}
	if t.FloorsMin <= 0 || t.FloorsMax < t.FloorsMin {
		return fmt.Errorf("floors range [%d,%d] invalid", t.FloorsMin, t.FloorsMax)
	}
	return nil
}
