package blocks

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
	"rmlines/internal/tagged"
)

// Test helpers

func id(author, counter uint64) crdt.ID {
	return crdt.ID{Author: author, Counter: counter}
}

func u32(v uint32) *uint32 { return &v }

func lwwBool(ts crdt.ID, v bool) *crdt.LWW[bool] {
	l := crdt.NewLWW(ts, v)
	return &l
}

func sampleLine() *scene.Line {
	move := id(1, 99)
	return &scene.Line{
		Tool:           scene.PenFineliner2,
		Color:          scene.ColorBlue,
		ThicknessScale: 2,
		StartingLength: 0,
		Points: []scene.Point{
			{X: 1, Y: 2, Speed: 3, Direction: 4, Width: 5, Pressure: 6},
			{X: -10.5, Y: 20.25, Speed: 300, Direction: 255, Width: 12, Pressure: 100},
		},
		Timestamp: id(1, 20),
		MoveID:    &move,
	}
}

func sampleTextBody() *TextBody {
	return &TextBody{
		Items: []TextItem{
			{SequenceItem: crdt.SequenceItem[scene.TextSpan]{
				ID: id(1, 16), LeftID: crdt.EndMarker, RightID: crdt.EndMarker,
				Value: scene.TextSpan{Format: 1, HasFormat: true},
			}},
			{SequenceItem: crdt.SequenceItem[scene.TextSpan]{
				ID: id(1, 17), LeftID: id(1, 16), RightID: crdt.EndMarker,
				Value: scene.TextSpan{Text: "Hi\n"},
			}},
			{SequenceItem: crdt.SequenceItem[scene.TextSpan]{
				ID: id(1, 20), LeftID: id(1, 19), RightID: crdt.EndMarker, DeletedLength: 2,
			}, NoValue: true},
		},
		Styles: []TextStyle{
			{CharID: crdt.EndMarker, Style: crdt.NewLWW(id(1, 15), scene.StyleHeading)},
			{CharID: id(1, 19), Style: crdt.NewLWW(id(1, 21), scene.StyleBullet)},
		},
		PosX:  -468,
		PosY:  234,
		Width: 936,
	}
}

func sampleBlocks() []Block {
	return []Block{
		&AuthorIDsBlock{Authors: []AuthorID{
			{Author: 1, UUID: uuid.MustParse("495ba59f-c943-2b5c-b455-3682f6948906")},
		}},
		&MigrationInfoBlock{MigrationID: id(1, 1), IsDevice: true},
		&PageInfoBlock{LoadsCount: 1, MergesCount: 0, TextCharsCount: 3, TextLinesCount: 1,
			TypeFolioUseCount: 2, HasTypeFolioUseCount: true},
		&SceneInfoBlock{
			CurrentLayer:      crdt.NewLWW(id(0, 1), id(0, 11)),
			BackgroundVisible: lwwBool(id(0, 2), true),
			PaperSize:         &tagged.IntPair{A: 1404, B: 1872},
		},
		&SceneTreeBlock{TreeID: id(0, 11), NodeID: crdt.EndMarker, IsUpdate: true, ParentID: crdt.RootID},
		&TreeNodeBlock{NodeID: crdt.RootID, Label: crdt.NewLWW(crdt.EndMarker, ""), Visible: crdt.NewLWW(crdt.EndMarker, true)},
		&TreeNodeBlock{
			NodeID:          id(0, 11),
			Label:           crdt.NewLWW(id(0, 12), "Layer 1"),
			Visible:         crdt.NewLWW(crdt.EndMarker, true),
			AnchorID:        &crdt.LWW[crdt.ID]{Timestamp: id(1, 22), Value: id(1, 14)},
			AnchorType:      &crdt.LWW[uint8]{Timestamp: id(1, 23), Value: 2},
			AnchorThreshold: &crdt.LWW[float32]{Timestamp: id(1, 24), Value: 67.02},
			AnchorOriginX:   &crdt.LWW[float32]{Timestamp: id(1, 20), Value: -464},
		},
		&SceneGroupItemBlock{
			ItemHeader: ItemHeader{ParentID: crdt.RootID, ItemID: id(0, 13), LeftID: crdt.EndMarker, RightID: crdt.EndMarker},
			Value:      ptrID(id(0, 11)),
		},
		&SceneLineItemBlock{
			ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 14), LeftID: crdt.EndMarker, RightID: crdt.EndMarker},
			Value:      sampleLine(),
		},
		&SceneLineItemBlock{
			ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 15), LeftID: id(1, 14), RightID: crdt.EndMarker, DeletedLength: 1},
		},
		&SceneGlyphItemBlock{
			ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 30), LeftID: id(1, 14), RightID: crdt.EndMarker},
			Value: &scene.GlyphRange{
				Start: u32(4), Length: u32(5), Color: scene.ColorYellow, Text: "hello",
				Rectangles: []scene.Rectangle{{X: 1, Y: 2, W: 30, H: 4}},
			},
		},
		&SceneTextItemBlock{
			ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 31), LeftID: id(1, 30), RightID: crdt.EndMarker},
			Value:      sampleTextBody(),
		},
		&SceneTombstoneItemBlock{
			ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 14), LeftID: crdt.EndMarker, RightID: crdt.EndMarker, DeletedLength: 1},
		},
		&RootTextBlock{BlockID: crdt.EndMarker, Value: sampleTextBody()},
	}
}

func ptrID(v crdt.ID) *crdt.ID { return &v }

func writeFile(t *testing.T, blocks []Block, opts Options) []byte {
	t.Helper()
	data, err := WriteBlocks(blocks, opts)
	require.NoError(t, err)
	return data
}

// rawBlock frames payload as a block of the given type.
func rawBlock(typ uint8, payload []byte) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(payload)))
	out = append(out, 0, 1, 1, typ)
	return append(out, payload...)
}

// =============================================================================
// Round-trip Tests
// =============================================================================

func TestRoundTrip_Identity(t *testing.T) {
	data := writeFile(t, sampleBlocks(), Options{})

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, blocks, len(sampleBlocks()))

	for i, b := range blocks {
		_, unreadable := b.(*UnreadableBlock)
		assert.False(t, unreadable, "block %d (%s)", i, TypeName(b.Type()))
	}

	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

func TestRoundTrip_DecodedFields(t *testing.T) {
	data := writeFile(t, sampleBlocks(), Options{})
	blocks, _, err := ReadBlocks(data)
	require.NoError(t, err)

	authors := blocks[0].(*AuthorIDsBlock)
	got, ok := authors.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "495ba59f-c943-2b5c-b455-3682f6948906", got.String())

	page := blocks[2].(*PageInfoBlock)
	assert.Equal(t, uint32(3), page.TextCharsCount)
	assert.True(t, page.HasTypeFolioUseCount)

	info := blocks[3].(*SceneInfoBlock)
	assert.Equal(t, id(0, 11), info.CurrentLayer.Value)
	assert.Nil(t, info.RootDocumentVisible)
	assert.Equal(t, &tagged.IntPair{A: 1404, B: 1872}, info.PaperSize)

	node := blocks[6].(*TreeNodeBlock)
	assert.Equal(t, "Layer 1", node.Label.Value)
	assert.True(t, node.HasAnchor())
	assert.False(t, blocks[5].(*TreeNodeBlock).HasAnchor())

	group := blocks[7].(*SceneGroupItemBlock)
	require.NotNil(t, group.Value)
	assert.Equal(t, id(0, 11), *group.Value)

	line := blocks[8].(*SceneLineItemBlock)
	require.NotNil(t, line.Value)
	assert.Equal(t, sampleLine(), line.Value)
	assert.Equal(t, uint8(2), line.CurrentVersion)
	assert.Nil(t, blocks[9].(*SceneLineItemBlock).Value)

	glyph := blocks[10].(*SceneGlyphItemBlock)
	assert.Equal(t, "hello", glyph.Value.Text)
	assert.Len(t, glyph.Value.Rectangles, 1)

	text := blocks[13].(*RootTextBlock)
	assert.Equal(t, sampleTextBody(), text.Value)
}

func TestRoundTrip_UnknownBlockType(t *testing.T) {
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	data := append([]byte(tagged.Header), rawBlock(0xFE, payload)...)

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	u, ok := blocks[0].(*UnreadableBlock)
	require.True(t, ok)
	assert.Equal(t, uint8(0xFE), u.Type())
	assert.Equal(t, payload, u.Data)
	assert.ErrorIs(t, u.Err, diag.ErrUnknownBlockType)

	require.Len(t, diags, 1)
	assert.Equal(t, diag.KindUnknownBlockType, diags[0].Kind)
	assert.Equal(t, 0, diags[0].BlockIndex)
	assert.Equal(t, uint8(0xFE), diags[0].BlockType)

	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

func TestRoundTrip_FutureBlockAppended(t *testing.T) {
	base := writeFile(t, sampleBlocks(), Options{})
	data := append(append([]byte(nil), base...), rawBlock(0x20, []byte{0x1f, 0x05, 0x07})...)

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	assert.NotEmpty(t, diags)
	assert.Len(t, blocks, len(sampleBlocks())+1)
	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

func TestRoundTrip_MalformedKnownBlock(t *testing.T) {
	// A SceneTree block whose first field has the wrong type.
	bad := rawBlock(TypeSceneTree, []byte{0x14, 1, 0, 0, 0})
	good := rawBlock(TypePageInfo, []byte{0x14, 1, 0, 0, 0, 0x24, 0, 0, 0, 0, 0x34, 0, 0, 0, 0, 0x44, 0, 0, 0, 0})
	data := append([]byte(tagged.Header), append(bad, good...)...)

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	u, ok := blocks[0].(*UnreadableBlock)
	require.True(t, ok)
	assert.ErrorIs(t, u.Err, diag.ErrSchemaMismatch)
	_, ok = blocks[1].(*PageInfoBlock)
	assert.True(t, ok, "decoding continues after an unreadable block")

	require.Len(t, diags, 1)
	assert.Equal(t, diag.KindSchemaMismatch, diags[0].Kind)
	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

func TestRoundTrip_TrailingFieldsKept(t *testing.T) {
	w := tagged.NewWriter()
	w.WriteID(1, id(1, 1))
	w.WriteBool(2, false)
	w.WriteDouble(5, 3.5) // field from a later release
	data := append([]byte(tagged.Header), rawBlock(TypeMigrationInfo, w.Bytes())...)

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	m, ok := blocks[0].(*MigrationInfoBlock)
	require.True(t, ok)
	assert.Len(t, m.Extra, 9)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.KindUnreadData, diags[0].Kind)

	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

// rootTextPayload is a RootText payload with one item "Hi" and one style.
// tails are appended inside the named subblocks.
func rootTextPayload(tails map[string][]byte) []byte {
	w := tagged.NewWriter()
	w.WriteID(1, crdt.EndMarker)
	w.WriteSubblock(2, func(outer *tagged.Writer) {
		outer.WriteSubblock(1, func(wrapper *tagged.Writer) {
			wrapper.WriteSubblock(1, func(list *tagged.Writer) {
				list.PutVarUint(1)
				list.WriteSubblock(0, func(item *tagged.Writer) {
					item.WriteID(2, id(1, 16))
					item.WriteID(3, crdt.EndMarker)
					item.WriteID(4, crdt.EndMarker)
					item.WriteInt(5, 0)
					item.WriteSubblock(6, func(str *tagged.Writer) {
						str.PutVarUint(2)
						str.PutFlag(true)
						str.PutBytes([]byte("Hi"))
						str.PutBytes(tails["string"])
					})
					item.PutBytes(tails["item"])
				})
			})
		})
		outer.WriteSubblock(2, func(wrapper *tagged.Writer) {
			wrapper.WriteSubblock(1, func(list *tagged.Writer) {
				list.PutVarUint(1)
				list.PutCrdtID(crdt.EndMarker)
				list.WriteID(1, id(1, 15))
				list.WriteSubblock(2, func(style *tagged.Writer) {
					style.PutUint8(paragraphStyleMarker)
					style.PutUint8(uint8(scene.StyleHeading))
					style.PutBytes(tails["style"])
				})
			})
		})
		outer.PutBytes(tails["text"])
	})
	w.WriteSubblock(3, func(pos *tagged.Writer) {
		pos.PutFloat64(1)
		pos.PutFloat64(2)
		pos.PutBytes(tails["position"])
	})
	w.WriteFloat(4, 100)
	return w.Bytes()
}

func TestRoundTrip_NestedTrailingFieldsKept(t *testing.T) {
	// A tagged int 9 = 9, as a newer release might add to a text item.
	intNine := []byte{0x94, 0x01, 9, 0, 0, 0}

	tests := []struct {
		name  string
		tails map[string][]byte
		check func(t *testing.T, body *TextBody)
	}{
		{
			name:  "text item field",
			tails: map[string][]byte{"item": intNine},
			check: func(t *testing.T, body *TextBody) {
				assert.Equal(t, tagged.Leftovers{"": intNine}, body.Items[0].Extra)
			},
		},
		{
			name:  "string tail",
			tails: map[string][]byte{"string": {0}},
			check: func(t *testing.T, body *TextBody) {
				assert.Equal(t, tagged.Leftovers{"6": {0}}, body.Items[0].Extra)
			},
		},
		{
			name:  "style tail",
			tails: map[string][]byte{"style": {0xff}},
			check: func(t *testing.T, body *TextBody) {
				assert.Equal(t, tagged.Leftovers{"": {0xff}}, body.Styles[0].Extra)
				assert.Equal(t, scene.StyleHeading, body.Styles[0].Style.Value)
			},
		},
		{
			name:  "text subblock tail",
			tails: map[string][]byte{"text": intNine},
			check: func(t *testing.T, body *TextBody) {
				assert.Equal(t, tagged.Leftovers{"2": intNine}, body.Extra)
			},
		},
		{
			name:  "position tail",
			tails: map[string][]byte{"position": {1, 2, 3}},
			check: func(t *testing.T, body *TextBody) {
				assert.Equal(t, tagged.Leftovers{"3": {1, 2, 3}}, body.Extra)
				assert.Equal(t, 2.0, body.PosY)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(tagged.Header), rawBlock(TypeRootText, rootTextPayload(tt.tails))...)

			blocks, diags, err := ReadBlocks(data)
			require.NoError(t, err)
			require.Len(t, blocks, 1)

			rt, ok := blocks[0].(*RootTextBlock)
			require.True(t, ok, "block should decode, got %T", blocks[0])
			require.Len(t, rt.Value.Items, 1)
			assert.Equal(t, "Hi", rt.Value.Items[0].Value.Text)
			tt.check(t, rt.Value)

			require.Len(t, diags, 1)
			assert.Equal(t, diag.KindUnreadData, diags[0].Kind)
			assert.Len(t, rt.Nested, 1)

			assert.Equal(t, data, writeFile(t, blocks, Options{}))
		})
	}

	t.Run("clean payload", func(t *testing.T) {
		data := append([]byte(tagged.Header), rawBlock(TypeRootText, rootTextPayload(nil))...)
		blocks, diags, err := ReadBlocks(data)
		require.NoError(t, err)
		assert.Empty(t, diags)

		rt := blocks[0].(*RootTextBlock)
		assert.Nil(t, rt.Value.Extra)
		assert.Nil(t, rt.Value.Items[0].Extra)
		assert.Nil(t, rt.Nested)
		assert.Equal(t, data, writeFile(t, blocks, Options{}))
	})
}

func TestRoundTrip_LwwTailKept(t *testing.T) {
	w := tagged.NewWriter()
	w.WriteLwwID(1, crdt.NewLWW(id(0, 1), id(0, 11)))
	w.WriteSubblock(2, func(sub *tagged.Writer) {
		sub.WriteID(1, id(0, 2))
		sub.WriteBool(2, true)
		sub.PutUint8(7)
	})
	data := append([]byte(tagged.Header), rawBlock(TypeSceneInfo, w.Bytes())...)

	blocks, diags, err := ReadBlocks(data)
	require.NoError(t, err)
	info, ok := blocks[0].(*SceneInfoBlock)
	require.True(t, ok)
	require.NotNil(t, info.BackgroundVisible)
	assert.True(t, info.BackgroundVisible.Value)
	assert.Equal(t, tagged.Leftovers{"2": {7}}, info.Leftovers)

	require.Len(t, diags, 1)
	assert.Equal(t, diag.KindUnreadData, diags[0].Kind)
	assert.Equal(t, data, writeFile(t, blocks, Options{}))
}

func TestRoundTrip_TruncatedFile(t *testing.T) {
	full := writeFile(t, sampleBlocks()[:3], Options{})
	last, err := EncodeBlock(sampleBlocks()[2], Options{})
	require.NoError(t, err)

	tests := []struct {
		name string
		cut  int
	}{
		{"inside payload", 5},
		{"inside frame header", len(last) - 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := full[:len(full)-tt.cut]
			blocks, diags, err := ReadBlocks(data)
			require.NoError(t, err)
			require.NotEmpty(t, blocks)
			assert.Equal(t, diag.KindTruncatedData, diags[len(diags)-1].Kind)
			assert.Equal(t, data, writeFile(t, blocks, Options{}))
		})
	}
}

func TestReadBlocks_InvalidHeader(t *testing.T) {
	_, _, err := ReadBlocks([]byte("not a scene file"))
	assert.ErrorIs(t, err, diag.ErrInvalidHeader)

	blocks, diags, err := ReadBlocks([]byte(tagged.Header))
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Empty(t, diags)
}

// =============================================================================
// Block Encoding Tests
// =============================================================================

func TestAuthorIDs_UUIDByteOrder(t *testing.T) {
	b := &AuthorIDsBlock{Authors: []AuthorID{
		{Author: 1, UUID: uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")},
	}}
	data, err := EncodeBlock(b, Options{})
	require.NoError(t, err)

	// frame(8) + count(1) + tag(1) + length(4) + uuid length(1)
	raw := data[8+1+1+4+1:][:16]
	assert.Equal(t, []byte{
		0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66,
		0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
	}, raw)
}

func TestEncodeBlock_DefaultFrame(t *testing.T) {
	data, err := EncodeBlock(&PageInfoBlock{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte{20, 0, 0, 0, 0, 0, 1, TypePageInfo}, data[:8])
}

func TestEncodeBlock_AuthorOverflow(t *testing.T) {
	_, err := EncodeBlock(&MigrationInfoBlock{MigrationID: id(300, 1)}, Options{})
	assert.ErrorIs(t, err, diag.ErrInvalidValue)
}

func TestLine_PointSizeMismatch(t *testing.T) {
	b := &SceneLineItemBlock{
		ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 14)},
		Value:      sampleLine(),
	}
	data, err := EncodeBlock(b, Options{})
	require.NoError(t, err)

	// Claim the points use the v1 layout.
	data[5], data[6] = 1, 1
	blocks, diags, err := ReadBlocks(append([]byte(tagged.Header), data...))
	require.NoError(t, err)
	_, ok := blocks[0].(*UnreadableBlock)
	assert.True(t, ok)
	assert.Equal(t, diag.KindSchemaMismatch, diags[0].Kind)
}

func TestItemType_Mismatch(t *testing.T) {
	w := tagged.NewWriter()
	h := ItemHeader{ParentID: crdt.RootID, ItemID: id(1, 1)}
	h.write(w)
	w.WriteSubblock(6, func(sub *tagged.Writer) {
		sub.PutUint8(ItemTypeLine)
	})
	b := Decode(tagged.BlockHeader{Type: TypeSceneGroupItem}, w.Bytes(), 0)
	u, ok := b.(*UnreadableBlock)
	require.True(t, ok)
	assert.ErrorIs(t, u.Err, diag.ErrSchemaMismatch)
}

func TestTextBody_SceneConversion(t *testing.T) {
	body := sampleTextBody()
	text := body.Scene()

	assert.Equal(t, 3, text.Items.Len())
	assert.Equal(t, scene.StyleHeading, text.Styles[crdt.EndMarker].Value)
	assert.Equal(t, 936.0, float64(text.Width))

	back := TextBodyFromScene(text)
	assert.ElementsMatch(t, body.Items, back.Items)
	assert.Equal(t, body.Styles, back.Styles)
}

func TestDecode_TombstoneWithValue(t *testing.T) {
	w := tagged.NewWriter()
	h := ItemHeader{ParentID: crdt.RootID, ItemID: id(1, 1), DeletedLength: 1}
	h.write(w)
	w.WriteSubblock(6, func(sub *tagged.Writer) { sub.PutBytes([]byte{9, 9}) })

	b := Decode(tagged.BlockHeader{Type: TypeSceneTombstone}, w.Bytes(), 0)
	ts, ok := b.(*SceneTombstoneItemBlock)
	require.True(t, ok)
	assert.True(t, ts.HasValue)
	assert.Equal(t, []byte{9, 9}, ts.RawValue)

	out, err := EncodeBlock(ts, Options{})
	require.NoError(t, err)
	assert.Equal(t, w.Bytes(), out[8:])
}

// =============================================================================
// Version Emulation Tests
// =============================================================================

func reread(t *testing.T, blocks []Block, opts Options) []Block {
	t.Helper()
	out, diags, err := ReadBlocks(writeFile(t, blocks, opts))
	require.NoError(t, err)
	require.Empty(t, diags)
	return out
}

func TestVersion_LinePoints(t *testing.T) {
	line := &SceneLineItemBlock{
		ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 14)},
		Value:      sampleLine(),
	}

	tests := []struct {
		version string
		want    uint8
	}{
		{"", 2},
		{"2.15", 1},
		{"3.0", 2},
		{"3.14.4", 2},
	}

	for _, tt := range tests {
		t.Run("version "+tt.version, func(t *testing.T) {
			got := reread(t, []Block{line}, Options{Version: tt.version})[0].(*SceneLineItemBlock)
			assert.Equal(t, tt.want, got.CurrentVersion)
			assert.Equal(t, tt.want, got.MinVersion)
			require.Len(t, got.Value.Points, 2)
			assert.Equal(t, line.Value.Points[1].X, got.Value.Points[1].X)
			assert.Equal(t, line.Value.Points[1].Width, got.Value.Points[1].Width)
		})
	}
}

func TestVersion_V1PointsKeptExactly(t *testing.T) {
	line := &SceneLineItemBlock{
		ItemHeader: ItemHeader{ParentID: id(0, 11), ItemID: id(1, 14)},
		Value:      sampleLine(),
	}
	v1 := writeFile(t, []Block{line}, Options{Version: "2.15"})

	blocks, _, err := ReadBlocks(v1)
	require.NoError(t, err)
	assert.Equal(t, v1, writeFile(t, blocks, Options{}))
}

func TestVersion_OptionalFields(t *testing.T) {
	all := sampleBlocks()

	tests := []struct {
		version      string
		typeFolio    bool
		anchors      bool
		formats      bool
		sceneInfoExt bool
	}{
		{"3.0", false, false, false, false},
		{"3.2.2", true, false, false, false},
		{"3.3.2", true, true, true, false},
		{"3.6", true, true, true, true},
		{"", true, true, true, true},
	}

	for _, tt := range tests {
		t.Run("version "+tt.version, func(t *testing.T) {
			got := reread(t, all, Options{Version: tt.version})

			page := got[2].(*PageInfoBlock)
			assert.Equal(t, tt.typeFolio, page.HasTypeFolioUseCount)

			node := got[6].(*TreeNodeBlock)
			assert.Equal(t, tt.anchors, node.HasAnchor())

			text := got[13].(*RootTextBlock)
			assert.Equal(t, tt.formats, text.Value.Items[0].Value.HasFormat)
			assert.Equal(t, "Hi\n", text.Value.Items[1].Value.Text)

			info := got[3].(*SceneInfoBlock)
			assert.Equal(t, tt.sceneInfoExt, info.BackgroundVisible != nil)
			assert.Equal(t, tt.sceneInfoExt, info.PaperSize != nil)
			assert.Equal(t, id(0, 11), info.CurrentLayer.Value)
		})
	}
}

func TestVersion_Invalid(t *testing.T) {
	for _, v := range []string{"three", "3..1", "3.-1", "3.x"} {
		_, err := WriteBlocks(sampleBlocks(), Options{Version: v})
		assert.ErrorIs(t, err, diag.ErrInvalidValue, v)
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"3.0", "3", 0},
		{"3.2.2", "3.2", 1},
		{"2.15", "3.0", -1},
		{"3.10", "3.9", 1},
	}
	for _, tt := range tests {
		a, err := ParseVersion(tt.a)
		require.NoError(t, err)
		b, err := ParseVersion(tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.Compare(b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, tt.a, a.String())
	}
}
