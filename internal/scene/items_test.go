package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"rmlines/internal/crdt"
)

func TestPointV1Conversion(t *testing.T) {
	p := NewPointV1(10, 20, 1.5, math.Pi, 2.25, 0.5)

	assert.Equal(t, uint16(6), p.Speed)
	assert.Equal(t, uint8(128), p.Direction)
	assert.Equal(t, uint16(9), p.Width)
	assert.Equal(t, uint8(128), p.Pressure)

	speed, direction, width, pressure := p.V1()
	assert.Equal(t, float32(1.5), speed)
	assert.Equal(t, float32(math.Pi), direction)
	assert.Equal(t, float32(2.25), width)
	assert.Equal(t, float32(0.5), pressure)
}

func TestPointV1_EditedSampleIsRecomputed(t *testing.T) {
	p := NewPointV1(0, 0, 1.5, 0, 2, 1)
	p.Speed = 8

	speed, _, width, pressure := p.V1()
	assert.Equal(t, float32(2), speed)
	assert.Equal(t, float32(2), width)
	assert.Equal(t, float32(1), pressure)
}

func TestPointV1_Clamps(t *testing.T) {
	p := NewPointV1(0, 0, -3, 100, float32(math.NaN()), 2)
	assert.Equal(t, uint16(0), p.Speed)
	assert.Equal(t, uint8(255), p.Direction)
	assert.Equal(t, uint16(0), p.Width)
	assert.Equal(t, uint8(255), p.Pressure)
}

func TestEnumNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{PenBallpoint1.String(), "ballpoint-1"},
		{Pen(99).String(), "pen(99)"},
		{ColorYellow.String(), "yellow"},
		{PenColor(42).String(), "color(42)"},
		{StyleCheckboxChecked.String(), "checkbox-checked"},
		{ParagraphStyle(9).String(), "style(9)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}

	assert.True(t, PenHighlighter2.IsHighlighter())
	assert.False(t, PenShader.IsHighlighter())
}

func TestGlyphRangeSpan(t *testing.T) {
	g := &GlyphRange{Text: "héllo"}
	start, length := g.Span()
	assert.Equal(t, uint32(0), start)
	assert.Equal(t, uint32(5), length)

	s, l := uint32(3), uint32(2)
	g = &GlyphRange{Start: &s, Length: &l, Text: "héllo"}
	start, length = g.Span()
	assert.Equal(t, uint32(3), start)
	assert.Equal(t, uint32(2), length)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "group", Kind(NewGroup(crdt.RootID)))
	assert.Equal(t, "line", Kind(&Line{}))
	assert.Equal(t, "text", Kind(NewText()))
	assert.Equal(t, "glyph", Kind(&GlyphRange{}))
	assert.Equal(t, "tombstone", Kind(nil))
}
