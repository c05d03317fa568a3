package grid

import "fmt"

type Coord struct {
	X int
	Y int
}

func (c Coord) String() string { return fmt.Sprintf("%d,%d", c.X, c.Y) }

func (c Coord) Step(d Dir) Coord {
	o := dirOffsets[d&3]
	return Coord{X: c.X + o.X, Y: c.Y + o.Y}
}

// Dir is a cardinal direction. The index order (E, N, W, S) is part of the
// rotation convention and must not change. North is -Y.
type Dir uint8

const (
	East Dir = iota
	North
	West
	South
)

var AllDirs = [4]Dir{East, North, West, South}

var dirOffsets = [4]Coord{
	{X: 1, Y: 0},
	{X: 0, Y: -1},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
}

func (d Dir) Offset() Coord { return dirOffsets[d&3] }

func (d Dir) Opposite() Dir { return (d + 2) & 3 }

func (d Dir) String() string {
	switch d & 3 {
	case East:
		return "E"
	case North:
		return "N"
	case West:
		return "W"
	default:
		return "S"
	}
}

// DirSet is a bitset of directions (bit i = Dir(i)).
type DirSet uint8

func DirsOf(ds ...Dir) DirSet {
	var s DirSet
	for _, d := range ds {
		s = s.With(d)
	}
	return s
}

func (s DirSet) Has(d Dir) bool     { return s&(1<<(d&3)) != 0 }
func (s DirSet) With(d Dir) DirSet  { return s | 1<<(d&3) }
func (s DirSet) Without(d Dir) DirSet { return s &^ (1 << (d & 3)) }

func (s DirSet) Count() int {
	n := 0
	for _, d := range AllDirs {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Dirs returns the members in index order.
func (s DirSet) Dirs() []Dir {
	out := make([]Dir, 0, 4)
	for _, d := range AllDirs {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s DirSet) String() string {
	b := make([]byte, 0, 4)
	for _, d := range s.Dirs() {
		b = append(b, d.String()...)
	}
	if len(b) == 0 {
		return "-"
	}
	return string(b)
}

type Kind uint8

const (
	KindEmpty Kind = iota
	KindConnective
	KindStructure
	KindDecoration
)

func (k Kind) String() string {
	switch k {
	case KindConnective:
		return "connective"
	case KindStructure:
		return "structure"
	case KindDecoration:
		return "decoration"
	default:
		return "empty"
	}
}

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "connective":
		return KindConnective, true
	case "structure":
		return KindStructure, true
	case "decoration":
		return KindDecoration, true
	case "empty", "":
		return KindEmpty, true
	default:
		return KindEmpty, false
	}
}

// Orientation is either a quarter-turn count (procedural placement) or an
// authored degree value (template placement).
type Orientation struct {
	turns    int
	degrees  int
	authored bool
}

func QuarterTurns(n int) Orientation {
	n %= 4
	if n < 0 {
		n += 4
	}
	return Orientation{turns: n}
}

func AuthoredDegrees(d int) Orientation {
	return Orientation{degrees: d, authored: true}
}

func (o Orientation) IsAuthored() bool { return o.authored }

// Turns returns the quarter-turn count. Authored values are rounded down to
// the nearest quarter turn.
func (o Orientation) Turns() int {
	if !o.authored {
		return o.turns
	}
	return QuarterTurns(normDeg(o.degrees) / 90).turns
}

// Degrees returns the orientation in [0,360).
func (o Orientation) Degrees() int {
	if o.authored {
		return normDeg(o.degrees)
	}
	return o.turns * 90
}

// Raw returns the value as persisted: degrees for authored orientations,
// quarter turns otherwise.
func (o Orientation) Raw() int {
	if o.authored {
		return o.degrees
	}
	return o.turns
}

func normDeg(d int) int {
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

type Variant uint8

const (
	VariantStraight Variant = iota
	VariantCorner
	VariantTee
	VariantCross
)

func (v Variant) String() string {
	switch v {
	case VariantCorner:
		return "corner"
	case VariantTee:
		return "tee"
	case VariantCross:
		return "cross"
	default:
		return "straight"
	}
}

// Cell is one of *Connective, *Structure, *Decoration or Empty.
type Cell interface {
	Kind() Kind
	isCell()
}

type Empty struct{}

func (Empty) Kind() Kind { return KindEmpty }
func (Empty) isCell()    {}

// Connective is a road or tunnel tile. Links caches which cardinal
// neighbours are also connective.
type Connective struct {
	AssetID     string
	Variant     Variant
	Orientation Orientation
	Links       DirSet

	// Authored tiles keep their authored asset and rotation; only Links is
	// maintained for them.
	Authored bool
}

func (*Connective) Kind() Kind { return KindConnective }
func (*Connective) isCell()    {}

type Structure struct {
	AssetID     string
	Orientation Orientation
	Floors      int
	MaxFloors   int
	Parts       []string
}

func (*Structure) Kind() Kind { return KindStructure }
func (*Structure) isCell()    {}

func (s *Structure) Growable() bool { return s.Floors < s.MaxFloors }

type Decoration struct {
	AssetID     string
	Orientation Orientation
	WallMount   bool
	WallSide    string
}

func (*Decoration) Kind() Kind { return KindDecoration }
func (*Decoration) isCell()    {}

// AssetOf returns the asset id carried by a cell, or "" for empty cells.
func AssetOf(c Cell) string {
	switch v := c.(type) {
	case *Connective:
		return v.AssetID
	case *Structure:
		return v.AssetID
	case *Decoration:
		return v.AssetID
	default:
		return ""
	}
}

// OrientationOf returns the orientation carried by a cell.
func OrientationOf(c Cell) Orientation {
	switch v := c.(type) {
	case *Connective:
		return v.Orientation
	case *Structure:
		return v.Orientation
	case *Decoration:
		return v.Orientation
	default:
		return Orientation{}
	}
}
