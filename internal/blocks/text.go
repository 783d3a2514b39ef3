package blocks

import (
	"fmt"
	"slices"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
	"rmlines/internal/tagged"
)

// paragraphStyleMarker precedes every paragraph style value.
const paragraphStyleMarker = 17

// TextItem is one entry of a text body as stored in the file.
type TextItem struct {
	crdt.SequenceItem[scene.TextSpan]

	// NoValue is set for entries written without a string field, which is
	// how deleted runs are stored.
	NoValue bool

	// Extra holds unread bytes of the entry and of its string.
	Extra tagged.Leftovers
}

// TextStyle assigns a paragraph style to the paragraph following CharID.
type TextStyle struct {
	CharID crdt.ID
	Style  crdt.LWW[scene.ParagraphStyle]

	// Extra holds unread bytes of the style value.
	Extra tagged.Leftovers
}

// TextBody is the stored form of a text document: runs of characters, the
// paragraph styles and the text box geometry.
type TextBody struct {
	Items  []TextItem
	Styles []TextStyle
	PosX   float64
	PosY   float64
	Width  float32

	// Extra holds unread bytes of the list and position subblocks.
	Extra tagged.Leftovers
}

// Scene converts the body to a scene text value.
func (t *TextBody) Scene() *scene.Text {
	out := scene.NewText()
	for _, it := range t.Items {
		out.Items.Insert(it.SequenceItem)
	}
	for _, s := range t.Styles {
		if cur, ok := out.Styles[s.CharID]; ok {
			out.Styles[s.CharID] = cur.Merge(s.Style)
		} else {
			out.Styles[s.CharID] = s.Style
		}
	}
	out.PosX, out.PosY, out.Width = t.PosX, t.PosY, t.Width
	return out
}

// TextBodyFromScene converts a scene text value to its stored form. Items are
// written in sequence order and styles in id order.
func TextBodyFromScene(t *scene.Text) *TextBody {
	body := &TextBody{PosX: t.PosX, PosY: t.PosY, Width: t.Width}
	for _, it := range t.Items.Items() {
		body.Items = append(body.Items, TextItem{
			SequenceItem: it,
			NoValue:      it.Deleted() && it.Value == (scene.TextSpan{}),
		})
	}
	for id, style := range t.Styles {
		body.Styles = append(body.Styles, TextStyle{CharID: id, Style: style})
	}
	slices.SortFunc(body.Styles, func(a, b TextStyle) int { return a.CharID.Compare(b.CharID) })
	return body
}

// readTextBody reads subblocks 2 (items and styles), 3 (position) and the
// width field 4. Bytes left unread inside them are kept on the body and its
// entries.
func readTextBody(r *tagged.Reader) (*TextBody, error) {
	body := &TextBody{}
	r.Keep(&body.Extra)
	outer, err := r.Subblock(2)
	if err != nil {
		return nil, err
	}

	items, err := openList(outer, 1)
	if err != nil {
		return nil, fmt.Errorf("text items: %w", err)
	}
	n, err := items.VarUint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		it, err := readTextItem(items)
		if err != nil {
			return nil, fmt.Errorf("text item %d: %w", i, err)
		}
		body.Items = append(body.Items, it)
	}
	if err := items.End("text items"); err != nil {
		return nil, err
	}

	styles, err := openList(outer, 2)
	if err != nil {
		return nil, fmt.Errorf("text styles: %w", err)
	}
	n, err = styles.VarUint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		s, err := readTextStyle(styles)
		if err != nil {
			return nil, fmt.Errorf("text style %d: %w", i, err)
		}
		body.Styles = append(body.Styles, s)
	}
	if err := styles.End("text styles"); err != nil {
		return nil, err
	}
	if err := outer.End("text"); err != nil {
		return nil, err
	}

	pos, err := r.Subblock(3)
	if err != nil {
		return nil, err
	}
	if body.PosX, err = pos.Float64(); err != nil {
		return nil, err
	}
	if body.PosY, err = pos.Float64(); err != nil {
		return nil, err
	}
	if err := pos.End("text position"); err != nil {
		return nil, err
	}
	if body.Width, err = r.ReadFloat(4); err != nil {
		return nil, err
	}
	return body, nil
}

// openList opens subblock index, which wraps a single subblock 1 holding a
// counted list.
func openList(r *tagged.Reader, index uint64) (*tagged.Reader, error) {
	wrapper, err := r.Subblock(index)
	if err != nil {
		return nil, err
	}
	list, err := wrapper.Subblock(1)
	if err != nil {
		return nil, err
	}
	if err := wrapper.End("list wrapper"); err != nil {
		return nil, err
	}
	return list, nil
}

func readTextItem(r *tagged.Reader) (TextItem, error) {
	var it TextItem
	sub, err := r.Subblock(0)
	if err != nil {
		return it, err
	}
	sub.Keep(&it.Extra)
	if it.ID, err = sub.ReadID(2); err != nil {
		return it, err
	}
	if it.LeftID, err = sub.ReadID(3); err != nil {
		return it, err
	}
	if it.RightID, err = sub.ReadID(4); err != nil {
		return it, err
	}
	if it.DeletedLength, err = sub.ReadInt(5); err != nil {
		return it, err
	}
	if sub.HasSubblock(6) {
		s, err := sub.ReadStringWithFormat(6)
		if err != nil {
			return it, err
		}
		it.Value = scene.TextSpan{Text: s.Text, Format: s.Format, HasFormat: s.HasFormat}
	} else {
		it.NoValue = true
	}
	return it, sub.End("text item")
}

func readTextStyle(r *tagged.Reader) (TextStyle, error) {
	var s TextStyle
	var err error
	if s.CharID, err = r.CrdtID(); err != nil {
		return s, err
	}
	if s.Style.Timestamp, err = r.ReadID(1); err != nil {
		return s, err
	}
	sub, err := r.Subblock(2)
	if err != nil {
		return s, err
	}
	sub.Keep(&s.Extra)
	marker, err := sub.Uint8()
	if err != nil {
		return s, err
	}
	if marker != paragraphStyleMarker {
		return s, fmt.Errorf("style marker %d: %w", marker, diag.ErrSchemaMismatch)
	}
	style, err := sub.Uint8()
	if err != nil {
		return s, err
	}
	s.Style.Value = scene.ParagraphStyle(style)
	return s, sub.End("text style")
}

func (t *TextBody) write(w *tagged.Writer, e *encoder) {
	formats := e.include(true, versionInlineFormat)
	w.Restore(t.Extra)
	w.WriteSubblock(2, func(outer *tagged.Writer) {
		outer.WriteSubblock(1, func(wrapper *tagged.Writer) {
			wrapper.WriteSubblock(1, func(list *tagged.Writer) {
				list.PutVarUint(uint64(len(t.Items)))
				for _, it := range t.Items {
					writeTextItem(list, it, formats)
				}
			})
		})
		outer.WriteSubblock(2, func(wrapper *tagged.Writer) {
			wrapper.WriteSubblock(1, func(list *tagged.Writer) {
				list.PutVarUint(uint64(len(t.Styles)))
				for _, s := range t.Styles {
					list.PutCrdtID(s.CharID)
					list.WriteID(1, s.Style.Timestamp)
					list.WriteSubblock(2, func(sub *tagged.Writer) {
						sub.Restore(s.Extra)
						sub.PutUint8(paragraphStyleMarker)
						sub.PutUint8(uint8(s.Style.Value))
					})
				}
			})
		})
	})
	w.WriteSubblock(3, func(pos *tagged.Writer) {
		pos.PutFloat64(t.PosX)
		pos.PutFloat64(t.PosY)
	})
	w.WriteFloat(4, t.Width)
}

func writeTextItem(w *tagged.Writer, it TextItem, formats bool) {
	w.WriteSubblock(0, func(sub *tagged.Writer) {
		sub.Restore(it.Extra)
		sub.WriteID(2, it.ID)
		sub.WriteID(3, it.LeftID)
		sub.WriteID(4, it.RightID)
		sub.WriteInt(5, it.DeletedLength)
		if it.NoValue {
			return
		}
		sub.WriteStringWithFormat(6, tagged.StringWithFormat{
			Text:      it.Value.Text,
			Format:    it.Value.Format,
			HasFormat: it.Value.HasFormat && formats,
		})
	})
}

// RootTextBlock holds the page's main text document.
type RootTextBlock struct {
	Info
	BlockID crdt.ID
	Value   *TextBody
}

// Type implements Block.
func (*RootTextBlock) Type() uint8 { return TypeRootText }

func decodeRootText(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	id, err := r.ReadID(1)
	if err != nil {
		return nil, err
	}
	if id != crdt.EndMarker {
		return nil, fmt.Errorf("root text id %s: %w", id, diag.ErrSchemaMismatch)
	}
	body, err := readTextBody(r)
	if err != nil {
		return nil, err
	}
	return &RootTextBlock{BlockID: id, Value: body}, nil
}

func (b *RootTextBlock) encode(w *tagged.Writer, e *encoder) {
	w.WriteID(1, b.BlockID)
	b.Value.write(w, e)
}
