package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/rmfile"
	"rmlines/internal/scene"
)

var layer = crdt.ID{Author: 0, Counter: 11}

// page is a simple text page with a stroke and a highlight on its layer and
// a stroke whose group never arrives.
func page(t *testing.T) *rmfile.Document {
	t.Helper()
	start, length := uint32(0), uint32(5)

	bs := rmfile.SimpleTextDocument("Title\nbody", uuid.MustParse("495ba59f-c943-2b5c-b455-3682f6948906"))
	bs = append(bs,
		&blocks.SceneLineItemBlock{
			ItemHeader: blocks.ItemHeader{ParentID: layer, ItemID: crdt.ID{Author: 1, Counter: 40}},
			Value: &scene.Line{
				Tool:           scene.PenFineliner2,
				Color:          scene.ColorBlue,
				ThicknessScale: 2,
				Points: []scene.Point{
					{X: 1, Y: 2, Speed: 3, Direction: 4, Width: 5, Pressure: 6},
					{X: -10.5, Y: 20.25, Speed: 300, Direction: 255, Width: 12, Pressure: 100},
				},
				Timestamp: crdt.ID{Author: 1, Counter: 41},
			},
		},
		&blocks.SceneGlyphItemBlock{
			ItemHeader: blocks.ItemHeader{
				ParentID: layer,
				ItemID:   crdt.ID{Author: 1, Counter: 50},
				LeftID:   crdt.ID{Author: 1, Counter: 40},
			},
			Value: &scene.GlyphRange{
				Start:      &start,
				Length:     &length,
				Color:      scene.ColorYellow,
				Text:       "hello",
				Rectangles: []scene.Rectangle{{X: 10, Y: 20, W: 30, H: 40}},
			},
		},
		&blocks.SceneLineItemBlock{
			ItemHeader: blocks.ItemHeader{ParentID: crdt.ID{Author: 9, Counter: 9}, ItemID: crdt.ID{Author: 1, Counter: 60}},
			Value:      &scene.Line{Tool: scene.PenPencil2, ThicknessScale: 1},
		},
	)

	data, err := blocks.WriteBlocks(bs, blocks.Options{})
	require.NoError(t, err)
	doc, err := rmfile.Parse(data)
	require.NoError(t, err)
	return doc
}

// =============================================================================
// Build Tests
// =============================================================================

func TestBuild(t *testing.T) {
	snap := Build(page(t), "page.rm")

	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, "page.rm", snap.Source)
	assert.Equal(t, BlockSummary{Total: 12, Unreadable: 0}, snap.Blocks)

	require.NotNil(t, snap.Root)
	assert.Equal(t, "0:1", snap.Root.ID)
	require.Len(t, snap.Root.Children, 1)

	l := snap.Root.Children[0]
	assert.Equal(t, "0:11", l.ID)
	assert.Equal(t, "group", l.Kind)
	assert.Equal(t, "Layer 1", l.Label)
	require.Len(t, l.Children, 2)

	stroke := l.Children[0]
	require.NotNil(t, stroke.Line)
	assert.Equal(t, "fineliner-2", stroke.Line.Tool)
	assert.Equal(t, "blue", stroke.Line.Color)
	assert.Equal(t, Point{X: -10.5, Y: 20.25, Speed: 300, Direction: 255, Width: 12, Pressure: 100}, stroke.Line.Points[1])

	glyph := l.Children[1]
	require.NotNil(t, glyph.Glyph)
	assert.Equal(t, uint32(5), glyph.Glyph.Length)
	assert.Equal(t, [][4]float64{{10, 20, 30, 40}}, glyph.Glyph.Rects)

	require.NotNil(t, snap.Orphans)
	require.Len(t, snap.Orphans.Children, 1)
	assert.Equal(t, "1:60", snap.Orphans.Children[0].ID)

	assert.Equal(t, []Paragraph{
		{Style: "plain", Text: "Title", Runs: []Run{{Text: "Title"}}},
		{Style: "plain", Text: "body", Runs: []Run{{Text: "body"}}},
	}, snap.Text)

	require.Len(t, snap.Diagnostics, 1)
	assert.Equal(t, "orphaned_reference", snap.Diagnostics[0].Kind)
}

func TestBuild_NoOrphans(t *testing.T) {
	data, err := blocks.WriteBlocks(rmfile.SimpleTextDocument("x", uuid.New()), blocks.Options{})
	require.NoError(t, err)
	doc, err := rmfile.Parse(data)
	require.NoError(t, err)

	snap := Build(doc, "")
	assert.Nil(t, snap.Orphans)
	assert.NotNil(t, snap.Diagnostics)
	assert.Empty(t, snap.Diagnostics)
}

// =============================================================================
// Encode Tests
// =============================================================================

func TestEncode_JSONMatchesSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(page(t), "page.rm"), FormatJSON))

	var instance any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &instance))

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("snapshot-v1.schema.json", bytes.NewReader(Schema)))
	schema, err := compiler.Compile("snapshot-v1.schema.json")
	require.NoError(t, err)

	assert.NoError(t, schema.Validate(instance))
}

func TestEncode_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Build(page(t), ""), FormatYAML))

	var got Snapshot
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "Layer 1", got.Root.Children[0].Label)
	assert.Len(t, got.Text, 2)
}

func TestEncode_CBORDeterministic(t *testing.T) {
	snap := Build(page(t), "page.rm")

	var a, b bytes.Buffer
	require.NoError(t, Encode(&a, snap, FormatCBOR))
	require.NoError(t, Encode(&b, Build(page(t), "page.rm"), FormatCBOR))
	assert.Equal(t, a.Bytes(), b.Bytes())

	var got Snapshot
	require.NoError(t, cbor.Unmarshal(a.Bytes(), &got))
	assert.Equal(t, snap.Root.Children[0].Children[0].Line, got.Root.Children[0].Children[0].Line)
	assert.Equal(t, snap.Blocks, got.Blocks)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"json", FormatJSON, true},
		{"YAML", FormatYAML, true},
		{"yml", FormatYAML, true},
		{"cbor", FormatCBOR, true},
		{"xml", FormatJSON, false},
		{"", FormatJSON, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, ".cbor", FormatCBOR.Extension())
}
