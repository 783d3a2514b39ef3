// Package rmfile reads and writes whole v6 scene files.
//
// Parse decodes every block, builds the scene tree and assembles the page
// text. Problems other than a bad file header are recovered and listed in
// Document.Diagnostics. Write re-encodes the decoded blocks and reproduces
// an unmodified file byte for byte.
//
// Document.Text is the page text of the RootText block only. Text boxes
// placed in groups stay in the tree as scene.Text items; TextItems assembles
// them.
package rmfile

import (
	"fmt"
	"io"
	"os"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
	"rmlines/internal/scenetree"
	"rmlines/internal/text"
)

// Options control writing.
type Options = blocks.Options

// Document is a parsed scene file.
type Document struct {
	Blocks      []blocks.Block
	Tree        *scenetree.Tree
	Text        *text.Document
	Diagnostics []diag.Diagnostic
}

// Parse decodes a scene file held in memory.
func Parse(data []byte) (*Document, error) {
	bs, diags, err := blocks.ReadBlocks(data)
	if err != nil {
		return nil, err
	}
	doc := &Document{Blocks: bs, Diagnostics: diags}

	tree, treeDiags := scenetree.Build(bs)
	doc.Tree = tree
	doc.Diagnostics = append(doc.Diagnostics, treeDiags...)

	if tree.RootText != nil {
		t, textDiags := text.FromSceneText(tree.RootText)
		doc.Text = t
		doc.Diagnostics = append(doc.Diagnostics, textDiags...)
	}
	return doc, nil
}

// ParseReader reads r to the end and parses it.
func ParseReader(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data)
}

// ParseFile parses the file at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Write encodes the document's blocks.
func Write(doc *Document, opts Options) ([]byte, error) {
	return blocks.WriteBlocks(doc.Blocks, opts)
}

// WriteTree encodes a tree. Parsing the result gives an equivalent tree.
func WriteTree(tree *scenetree.Tree, opts Options) ([]byte, error) {
	return blocks.WriteBlocks(scenetree.Flatten(tree), opts)
}

// TextItem is an assembled text box from the scene tree.
type TextItem struct {
	GroupID crdt.ID
	ItemID  crdt.ID
	Text    *text.Document
	// Diagnostics are the problems found assembling this item. They are not
	// part of Document.Diagnostics.
	Diagnostics []diag.Diagnostic
}

// TextItems assembles the live text boxes of the tree in walk order.
func (d *Document) TextItems() []TextItem {
	var (
		out    []TextItem
		groups []crdt.ID
	)
	d.Tree.Walk(func(depth int, id crdt.ID, item scene.Item) bool {
		switch it := item.(type) {
		case *scene.Group:
			groups = append(groups[:depth], id)
		case *scene.Text:
			td, diags := text.FromSceneText(it)
			out = append(out, TextItem{
				GroupID:     groups[depth-1],
				ItemID:      id,
				Text:        td,
				Diagnostics: diags,
			})
		}
		return true
	})
	return out
}

// Unreadable returns the number of blocks that could not be decoded.
func (d *Document) Unreadable() int {
	n := 0
	for _, b := range d.Blocks {
		if _, ok := b.(*blocks.UnreadableBlock); ok {
			n++
		}
	}
	return n
}
