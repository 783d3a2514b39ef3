package text

import (
	"fmt"
	"strings"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
)

// Inline format codes.
const (
	FormatBoldOn    uint32 = 1
	FormatBoldOff   uint32 = 2
	FormatItalicOn  uint32 = 3
	FormatItalicOff uint32 = 4
)

// Weight is the font weight of a run.
type Weight uint8

const (
	WeightNormal Weight = iota
	WeightBold
)

func (w Weight) String() string {
	if w == WeightBold {
		return "bold"
	}
	return "normal"
}

// FontStyle is the slant of a run.
type FontStyle uint8

const (
	FontNormal FontStyle = iota
	FontItalic
)

func (f FontStyle) String() string {
	if f == FontItalic {
		return "italic"
	}
	return "normal"
}

// Style is shared by every character of a run.
type Style struct {
	Weight    Weight
	FontStyle FontStyle
	Paragraph scene.ParagraphStyle
}

// Run is a span of characters with one style. IDs holds one id per rune.
type Run struct {
	Text  string
	IDs   []crdt.ID
	Style Style
}

// Paragraph is a line of text ending at a newline.
type Paragraph struct {
	// StartID is the id of the newline before the paragraph, or EndMarker
	// for the first one.
	StartID crdt.ID
	Style   crdt.LWW[scene.ParagraphStyle]
	Runs    []Run

	// Terminator is the id of the closing newline; Terminated is false for
	// a final paragraph without one.
	Terminator crdt.ID
	Terminated bool
}

// Text returns the paragraph text including its newline.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	if p.Terminated {
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Document is assembled text.
type Document struct {
	Paragraphs []Paragraph
}

// String returns the whole text.
func (d *Document) String() string {
	var sb strings.Builder
	for i := range d.Paragraphs {
		sb.WriteString(d.Paragraphs[i].Text())
	}
	return sb.String()
}

// Line is a paragraph's style and its text without the newline.
type Line struct {
	Style scene.ParagraphStyle `json:"style" yaml:"style"`
	Text  string               `json:"text" yaml:"text"`
}

// Lines returns one entry per paragraph.
func (d *Document) Lines() []Line {
	out := make([]Line, len(d.Paragraphs))
	for i := range d.Paragraphs {
		p := &d.Paragraphs[i]
		out[i] = Line{Style: p.Style.Value, Text: strings.TrimSuffix(p.Text(), "\n")}
	}
	return out
}

// defaultStyle applies to paragraphs without a recorded style.
var defaultStyle = crdt.NewLWW(crdt.EndMarker, scene.StylePlain)

// Assemble scans the live characters of chars in order and groups them into
// paragraphs and runs. Format codes switch the weight and slant of the
// characters that follow; unknown codes are ignored. Each paragraph takes the
// style keyed by the id of the newline before it, EndMarker for the first.
//
// Spans holding more than one character are read as consecutive ids, so chars
// need not be expanded first.
func Assemble(chars *crdt.Sequence[scene.TextSpan], styles map[crdt.ID]crdt.LWW[scene.ParagraphStyle]) (*Document, []diag.Diagnostic) {
	var diags []diag.Diagnostic
	for _, br := range chars.BrokenCycles() {
		diags = append(diags, diag.FromError(diag.NoBlock, 0, diag.NoOffset,
			fmt.Errorf("text: order of %s after %s ignored: %w", br.ID, br.Link, diag.ErrCycleDetected)))
	}

	a := &assembler{styles: styles, doc: &Document{}}
	a.open(crdt.EndMarker)
	for id, span := range chars.Live() {
		if span.IsFormat() {
			a.format(span.Format)
			continue
		}
		var i uint64
		for _, r := range span.Text {
			a.char(id.Next(i), r)
			i++
		}
	}
	a.close()
	return a.doc, diags
}

// FromSceneText expands the items of t and assembles them.
func FromSceneText(t *scene.Text) (*Document, []diag.Diagnostic) {
	items, diags := ExpandItems(t.Items.Items())
	doc, more := Assemble(crdt.NewSequence(items...), t.Styles)
	return doc, append(diags, more...)
}

type assembler struct {
	styles map[crdt.ID]crdt.LWW[scene.ParagraphStyle]
	doc    *Document

	weight Weight
	slant  FontStyle
	cur    *Paragraph
}

func (a *assembler) open(start crdt.ID) {
	style, ok := a.styles[start]
	if !ok {
		style = defaultStyle
	}
	a.cur = &Paragraph{StartID: start, Style: style}
}

// close appends the current paragraph unless it is an empty final one.
func (a *assembler) close() {
	if a.cur.Terminated || len(a.cur.Runs) > 0 {
		a.doc.Paragraphs = append(a.doc.Paragraphs, *a.cur)
	}
}

func (a *assembler) format(code uint32) {
	switch code {
	case FormatBoldOn:
		a.weight = WeightBold
	case FormatBoldOff:
		a.weight = WeightNormal
	case FormatItalicOn:
		a.slant = FontItalic
	case FormatItalicOff:
		a.slant = FontNormal
	}
}

func (a *assembler) char(id crdt.ID, r rune) {
	if r == '\n' {
		a.cur.Terminator, a.cur.Terminated = id, true
		a.close()
		a.open(id)
		return
	}

	style := Style{Weight: a.weight, FontStyle: a.slant, Paragraph: a.cur.Style.Value}
	runs := a.cur.Runs
	if len(runs) == 0 || runs[len(runs)-1].Style != style {
		a.cur.Runs = append(a.cur.Runs, Run{Style: style})
	}
	run := &a.cur.Runs[len(a.cur.Runs)-1]
	run.Text += string(r)
	run.IDs = append(run.IDs, id)
}
