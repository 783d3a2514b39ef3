// Package scene defines the values held in a scene tree: groups, strokes,
// text and highlighted glyph ranges.
package scene

import (
	"fmt"
	"math"

	"rmlines/internal/crdt"
)

// Item is a child of a Group.
type Item interface {
	itemKind() string
}

// Kind returns a short name for the concrete type of it.
func Kind(it Item) string {
	if it == nil {
		return "tombstone"
	}
	return it.itemKind()
}

// Group is a layer or container. Children are ordered by their CRDT links.
type Group struct {
	NodeID   crdt.ID
	Children *crdt.Sequence[Item]
	Label    crdt.LWW[string]
	Visible  crdt.LWW[bool]

	AnchorID        *crdt.LWW[crdt.ID]
	AnchorType      *crdt.LWW[uint8]
	AnchorThreshold *crdt.LWW[float32]
	AnchorOriginX   *crdt.LWW[float32]

	// Orphaned is set on groups whose parent never resolved.
	Orphaned bool
}

// NewGroup returns an empty visible group.
func NewGroup(id crdt.ID) *Group {
	return &Group{
		NodeID:   id,
		Children: crdt.NewSequence[Item](),
		Visible:  crdt.NewLWW(crdt.EndMarker, true),
	}
}

func (*Group) itemKind() string { return "group" }

// Point is one sample of a stroke.
type Point struct {
	X, Y      float32
	Speed     uint16
	Direction uint8
	Width     uint16
	Pressure  uint8

	// v1 keeps the float encoding a point was read from so it can be written
	// back unchanged.
	v1 *[4]float32
}

// NewPointV1 builds a point from the float encoding used by early firmware.
func NewPointV1(x, y, speed, direction, width, pressure float32) Point {
	return Point{
		X:         x,
		Y:         y,
		Speed:     uint16(clampRound(float64(speed)*4, math.MaxUint16)),
		Direction: uint8(clampRound(255*float64(direction)/(2*math.Pi), math.MaxUint8)),
		Width:     uint16(clampRound(float64(width)*4, math.MaxUint16)),
		Pressure:  uint8(clampRound(float64(pressure)*255, math.MaxUint8)),
		v1:        &[4]float32{speed, direction, width, pressure},
	}
}

// V1 returns the float encoding of speed, direction, width and pressure.
func (p Point) V1() (speed, direction, width, pressure float32) {
	if p.v1 != nil && NewPointV1(p.X, p.Y, p.v1[0], p.v1[1], p.v1[2], p.v1[3]).sameSample(p) {
		return p.v1[0], p.v1[1], p.v1[2], p.v1[3]
	}
	return float32(p.Speed) / 4,
		float32(float64(p.Direction) * 2 * math.Pi / 255),
		float32(p.Width) / 4,
		float32(p.Pressure) / 255
}

func (p Point) sameSample(o Point) bool {
	return p.Speed == o.Speed && p.Direction == o.Direction && p.Width == o.Width && p.Pressure == o.Pressure
}

func clampRound(v, limit float64) float64 {
	v = math.Round(v)
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > limit:
		return limit
	}
	return v
}

// Line is a pen stroke.
type Line struct {
	Tool           Pen
	Color          PenColor
	ThicknessScale float64
	StartingLength float32
	Points         []Point
	Timestamp      crdt.ID
	MoveID         *crdt.ID
}

func (*Line) itemKind() string { return "line" }

// Rectangle is an axis-aligned box in page coordinates.
type Rectangle struct {
	X, Y, W, H float64
}

// GlyphRange is a highlighted span of text in an underlying PDF page.
type GlyphRange struct {
	Start      *uint32
	Length     *uint32
	Color      PenColor
	Text       string
	Rectangles []Rectangle
}

func (*GlyphRange) itemKind() string { return "glyph" }

// Span returns the start and length of the range. A missing length means the
// whole text.
func (g *GlyphRange) Span() (start, length uint32) {
	if g.Start != nil {
		start = *g.Start
	}
	if g.Length != nil {
		length = *g.Length
	} else {
		length = uint32(len([]rune(g.Text)))
	}
	return start, length
}

// TextSpan is one entry of a text sequence: a run of characters whose id names
// the first character, or an inline format code.
type TextSpan struct {
	Text      string
	Format    uint32
	HasFormat bool
}

// IsFormat reports whether the span is a format code rather than text.
func (s TextSpan) IsFormat() bool { return s.HasFormat }

// Text is a block of typed text with per-paragraph styles.
type Text struct {
	Items  *crdt.Sequence[TextSpan]
	Styles map[crdt.ID]crdt.LWW[ParagraphStyle]
	PosX   float64
	PosY   float64
	Width  float32
}

// NewText returns an empty text block.
func NewText() *Text {
	return &Text{
		Items:  crdt.NewSequence[TextSpan](),
		Styles: make(map[crdt.ID]crdt.LWW[ParagraphStyle]),
	}
}

func (*Text) itemKind() string { return "text" }

// ParagraphStyle is the style of one line of text.
type ParagraphStyle uint8

const (
	StyleBasic           ParagraphStyle = 0
	StylePlain           ParagraphStyle = 1
	StyleHeading         ParagraphStyle = 2
	StyleBold            ParagraphStyle = 3
	StyleBullet          ParagraphStyle = 4
	StyleBullet2         ParagraphStyle = 5
	StyleCheckbox        ParagraphStyle = 6
	StyleCheckboxChecked ParagraphStyle = 7
)

var paragraphStyleNames = map[ParagraphStyle]string{
	StyleBasic:           "basic",
	StylePlain:           "plain",
	StyleHeading:         "heading",
	StyleBold:            "bold",
	StyleBullet:          "bullet",
	StyleBullet2:         "bullet2",
	StyleCheckbox:        "checkbox",
	StyleCheckboxChecked: "checkbox-checked",
}

func (s ParagraphStyle) String() string {
	if name, ok := paragraphStyleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("style(%d)", uint8(s))
}
