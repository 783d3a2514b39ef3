// Package export renders a parsed scene file as a self-describing snapshot
// for tools that do not speak the binary format.
//
// A snapshot holds the live scene tree, the assembled page text and every
// diagnostic of the parse. It is written as JSON, YAML or CBOR; the JSON form
// is described by the embedded schema.
package export

import (
	"fmt"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/rmfile"
	"rmlines/internal/scene"
	"rmlines/internal/text"
)

// SchemaVersion is the snapshot layout version.
const SchemaVersion = 1

// Snapshot is the exported view of one scene file.
type Snapshot struct {
	SchemaVersion int          `json:"schema_version" yaml:"schema_version"`
	Source        string       `json:"source,omitempty" yaml:"source,omitempty"`
	Blocks        BlockSummary `json:"blocks" yaml:"blocks"`
	Root          *Node        `json:"root" yaml:"root"`
	Orphans       *Node        `json:"orphans,omitempty" yaml:"orphans,omitempty"`
	Text          []Paragraph  `json:"text,omitempty" yaml:"text,omitempty"`
	Diagnostics   []Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

// BlockSummary counts the blocks of the file.
type BlockSummary struct {
	Total      int `json:"total" yaml:"total"`
	Unreadable int `json:"unreadable" yaml:"unreadable"`
}

// Node is one live item of the scene tree.
type Node struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     string      `json:"kind" yaml:"kind"`
	Label    string      `json:"label,omitempty" yaml:"label,omitempty"`
	Hidden   bool        `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Line     *Line       `json:"line,omitempty" yaml:"line,omitempty"`
	Glyph    *Glyph      `json:"glyph,omitempty" yaml:"glyph,omitempty"`
	Text     []Paragraph `json:"text,omitempty" yaml:"text,omitempty"`
	Children []*Node     `json:"children,omitempty" yaml:"children,omitempty"`
}

// Line is a stroke.
type Line struct {
	Tool           string  `json:"tool" yaml:"tool"`
	Color          string  `json:"color" yaml:"color"`
	ThicknessScale float64 `json:"thickness_scale" yaml:"thickness_scale"`
	Points         []Point `json:"points" yaml:"points"`
}

// Point is a stroke sample.
type Point struct {
	X         float32 `json:"x" yaml:"x"`
	Y         float32 `json:"y" yaml:"y"`
	Speed     uint16  `json:"speed" yaml:"speed"`
	Direction uint8   `json:"direction" yaml:"direction"`
	Width     uint16  `json:"width" yaml:"width"`
	Pressure  uint8   `json:"pressure" yaml:"pressure"`
}

// Glyph is a highlighted text range.
type Glyph struct {
	Color  string       `json:"color" yaml:"color"`
	Text   string       `json:"text" yaml:"text"`
	Start  uint32       `json:"start" yaml:"start"`
	Length uint32       `json:"length" yaml:"length"`
	Rects  [][4]float64 `json:"rects,omitempty" yaml:"rects,omitempty"`
}

// Paragraph is a line of text with its style and styled runs.
type Paragraph struct {
	Style string `json:"style" yaml:"style"`
	Text  string `json:"text" yaml:"text"`
	Runs  []Run  `json:"runs,omitempty" yaml:"runs,omitempty"`
}

// Run is a span of text with one weight and slant.
type Run struct {
	Text   string `json:"text" yaml:"text"`
	Bold   bool   `json:"bold,omitempty" yaml:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty" yaml:"italic,omitempty"`
}

// Diagnostic is a recovered parse problem.
type Diagnostic struct {
	Block     int    `json:"block" yaml:"block"`
	BlockType string `json:"block_type,omitempty" yaml:"block_type,omitempty"`
	Kind      string `json:"kind" yaml:"kind"`
	Reason    string `json:"reason" yaml:"reason"`
	Message   string `json:"message" yaml:"message"`
}

// Build renders doc as a snapshot. source names the file and may be empty.
func Build(doc *rmfile.Document, source string) *Snapshot {
	snap := &Snapshot{
		SchemaVersion: SchemaVersion,
		Source:        source,
		Blocks: BlockSummary{
			Total:      len(doc.Blocks),
			Unreadable: doc.Unreadable(),
		},
		Diagnostics: make([]Diagnostic, 0, len(doc.Diagnostics)),
	}

	var roots []*Node
	var stack []*Node
	doc.Tree.Walk(func(depth int, id crdt.ID, item scene.Item) bool {
		n := newNode(id, item)
		stack = stack[:depth]
		if depth == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[depth-1]
			parent.Children = append(parent.Children, n)
		}
		stack = append(stack, n)
		return true
	})
	snap.Root = roots[0]
	if len(roots) > 1 && len(roots[1].Children) > 0 {
		snap.Orphans = roots[1]
	}

	if doc.Text != nil {
		snap.Text = paragraphs(doc.Text)
	}
	for _, d := range doc.Diagnostics {
		snap.Diagnostics = append(snap.Diagnostics, diagnostic(d))
	}
	return snap
}

func newNode(id crdt.ID, item scene.Item) *Node {
	n := &Node{ID: formatID(id), Kind: scene.Kind(item)}
	switch it := item.(type) {
	case *scene.Group:
		n.Label = it.Label.Value
		n.Hidden = !it.Visible.Value
	case *scene.Line:
		n.Line = &Line{
			Tool:           it.Tool.String(),
			Color:          it.Color.String(),
			ThicknessScale: it.ThicknessScale,
			Points:         make([]Point, len(it.Points)),
		}
		for i, p := range it.Points {
			n.Line.Points[i] = Point{
				X: p.X, Y: p.Y,
				Speed: p.Speed, Direction: p.Direction,
				Width: p.Width, Pressure: p.Pressure,
			}
		}
	case *scene.GlyphRange:
		start, length := it.Span()
		n.Glyph = &Glyph{Color: it.Color.String(), Text: it.Text, Start: start, Length: length}
		for _, r := range it.Rectangles {
			n.Glyph.Rects = append(n.Glyph.Rects, [4]float64{r.X, r.Y, r.W, r.H})
		}
	case *scene.Text:
		// Diagnostics of nested text are not part of the parse result.
		td, _ := text.FromSceneText(it)
		n.Text = paragraphs(td)
	}
	return n
}

func paragraphs(doc *text.Document) []Paragraph {
	out := make([]Paragraph, 0, len(doc.Paragraphs))
	for i := range doc.Paragraphs {
		p := &doc.Paragraphs[i]
		para := Paragraph{Style: p.Style.Value.String()}
		for _, r := range p.Runs {
			para.Text += r.Text
			para.Runs = append(para.Runs, Run{
				Text:   r.Text,
				Bold:   r.Style.Weight == text.WeightBold,
				Italic: r.Style.FontStyle == text.FontItalic,
			})
		}
		out = append(out, para)
	}
	return out
}

func diagnostic(d diag.Diagnostic) Diagnostic {
	out := Diagnostic{
		Block:   d.BlockIndex,
		Kind:    string(d.Kind),
		Reason:  d.Reason,
		Message: d.String(),
	}
	if d.BlockIndex != diag.NoBlock {
		out.BlockType = fmt.Sprintf("0x%02x", d.BlockType)
	}
	return out
}

func formatID(id crdt.ID) string {
	return fmt.Sprintf("%d:%d", id.Author, id.Counter)
}
