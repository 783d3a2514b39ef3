// Package text assembles the character sequence of a text item into
// paragraphs of styled runs.
package text

import (
	"fmt"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
)

// MaxDeletedChars bounds how many characters the text-less deleted runs of
// one text may expand to.
const MaxDeletedChars = 1 << 16

// ExpandItem splits a text span into one item per character. The span's id
// names its first character and the following characters take consecutive
// counters; left and right links are rewired to chain the characters.
//
// A deleted span without text stands for DeletedLength deleted characters,
// at most MaxDeletedChars of them. Format codes are returned unchanged and an
// empty live span yields nothing.
func ExpandItem(item crdt.SequenceItem[scene.TextSpan]) []crdt.SequenceItem[scene.TextSpan] {
	return expand(item, MaxDeletedChars)
}

// expand is ExpandItem with a deleted run cut to limit characters.
func expand(item crdt.SequenceItem[scene.TextSpan], limit uint32) []crdt.SequenceItem[scene.TextSpan] {
	if item.Value.IsFormat() {
		return []crdt.SequenceItem[scene.TextSpan]{item}
	}

	var chars []string
	var deleted uint32
	switch {
	case item.Deleted() && item.Value.Text == "":
		chars = make([]string, min(item.DeletedLength, limit))
		deleted = 1
	case item.Deleted():
		chars = splitRunes(item.Value.Text)
		deleted = 1
	default:
		chars = splitRunes(item.Value.Text)
	}
	if len(chars) == 0 {
		return nil
	}

	out := make([]crdt.SequenceItem[scene.TextSpan], len(chars))
	left := item.LeftID
	for i, c := range chars {
		id := item.ID.Next(uint64(i))
		right := id.Next(1)
		if i == len(chars)-1 {
			right = item.RightID
		}
		out[i] = crdt.SequenceItem[scene.TextSpan]{
			ID:            id,
			LeftID:        left,
			RightID:       right,
			DeletedLength: deleted,
			Value:         scene.TextSpan{Text: c},
		}
		left = id
	}
	return out
}

// ExpandItems expands every item in turn. Deleted runs share one budget of
// MaxDeletedChars; a run cut short by it is reported as an invalid value.
func ExpandItems(items []crdt.SequenceItem[scene.TextSpan]) ([]crdt.SequenceItem[scene.TextSpan], []diag.Diagnostic) {
	var (
		out    []crdt.SequenceItem[scene.TextSpan]
		diags  []diag.Diagnostic
		budget uint32 = MaxDeletedChars
	)
	for _, it := range items {
		if !it.Deleted() || it.Value.IsFormat() || it.Value.Text != "" {
			out = append(out, ExpandItem(it)...)
			continue
		}
		if it.DeletedLength > budget {
			diags = append(diags, diag.FromError(diag.NoBlock, 0, diag.NoOffset,
				fmt.Errorf("text: deleted run %s of %d characters cut to %d: %w",
					it.ID, it.DeletedLength, budget, diag.ErrInvalidValue)))
		}
		chars := expand(it, budget)
		budget -= uint32(len(chars))
		out = append(out, chars...)
	}
	return out, diags
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
