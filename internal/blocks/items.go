package blocks

import (
	"fmt"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
	"rmlines/internal/tagged"
)

// Item type bytes at the start of an item's value subblock.
const (
	ItemTypeGlyph uint8 = 1
	ItemTypeGroup uint8 = 2
	ItemTypeLine  uint8 = 3
	ItemTypeText  uint8 = 5
)

// Point record sizes for the two line layouts.
const (
	pointSizeV1 = 0x18
	pointSizeV2 = 0x0E
)

// ItemHeader is shared by all item blocks: the item's place in its parent
// group's child sequence.
type ItemHeader struct {
	ParentID      crdt.ID
	ItemID        crdt.ID
	LeftID        crdt.ID
	RightID       crdt.ID
	DeletedLength uint32
}

// Header returns the item header.
func (h *ItemHeader) Header() *ItemHeader { return h }

// ItemBlock is implemented by every block that places an item in a group.
type ItemBlock interface {
	Block
	Header() *ItemHeader
}

func readItemHeader(r *tagged.Reader) (ItemHeader, error) {
	var h ItemHeader
	var err error
	if h.ParentID, err = r.ReadID(1); err != nil {
		return h, err
	}
	if h.ItemID, err = r.ReadID(2); err != nil {
		return h, err
	}
	if h.LeftID, err = r.ReadID(3); err != nil {
		return h, err
	}
	if h.RightID, err = r.ReadID(4); err != nil {
		return h, err
	}
	if h.DeletedLength, err = r.ReadInt(5); err != nil {
		return h, err
	}
	return h, nil
}

func (h *ItemHeader) write(w *tagged.Writer) {
	w.WriteID(1, h.ParentID)
	w.WriteID(2, h.ItemID)
	w.WriteID(3, h.LeftID)
	w.WriteID(4, h.RightID)
	w.WriteInt(5, h.DeletedLength)
}

// readItemValue opens the optional value subblock and checks its item type.
// It returns nil when the block has no value.
func readItemValue(r *tagged.Reader, want uint8) (*tagged.Reader, error) {
	if !r.HasSubblock(6) {
		return nil, nil
	}
	sub, err := r.Subblock(6)
	if err != nil {
		return nil, err
	}
	typ, err := sub.Uint8()
	if err != nil {
		return nil, err
	}
	if typ != want {
		return nil, fmt.Errorf("item type %d, expected %d: %w", typ, want, diag.ErrSchemaMismatch)
	}
	return sub, nil
}

func writeItemValue(w *tagged.Writer, typ uint8, extra []byte, body func(*tagged.Writer)) {
	w.WriteSubblock(6, func(sub *tagged.Writer) {
		sub.PutUint8(typ)
		body(sub)
		sub.PutBytes(extra)
	})
}

// SceneGroupItemBlock places a group inside its parent. Value is the node id
// of the child group.
type SceneGroupItemBlock struct {
	Info
	ItemHeader
	Value      *crdt.ID
	ValueExtra []byte
}

// Type implements Block.
func (*SceneGroupItemBlock) Type() uint8 { return TypeSceneGroupItem }

func decodeGroupItem(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	h, err := readItemHeader(r)
	if err != nil {
		return nil, err
	}
	b := &SceneGroupItemBlock{ItemHeader: h}
	sub, err := readItemValue(r, ItemTypeGroup)
	if err != nil || sub == nil {
		return b, err
	}
	id, err := sub.ReadID(2)
	if err != nil {
		return nil, err
	}
	b.Value = &id
	b.ValueExtra = sub.Rest()
	return b, nil
}

func (b *SceneGroupItemBlock) encode(w *tagged.Writer, _ *encoder) {
	b.ItemHeader.write(w)
	if b.Value != nil {
		writeItemValue(w, ItemTypeGroup, b.ValueExtra, func(sub *tagged.Writer) {
			sub.WriteID(2, *b.Value)
		})
	}
}

// SceneLineItemBlock places a stroke in a group.
type SceneLineItemBlock struct {
	Info
	ItemHeader
	Value      *scene.Line
	ValueExtra []byte
}

// Type implements Block.
func (*SceneLineItemBlock) Type() uint8 { return TypeSceneLineItem }

func decodeLineItem(r *tagged.Reader, h tagged.BlockHeader) (Block, error) {
	ih, err := readItemHeader(r)
	if err != nil {
		return nil, err
	}
	b := &SceneLineItemBlock{ItemHeader: ih}
	sub, err := readItemValue(r, ItemTypeLine)
	if err != nil || sub == nil {
		return b, err
	}
	if b.Value, err = readLine(sub, h.CurrentVersion); err != nil {
		return nil, err
	}
	b.ValueExtra = sub.Rest()
	return b, nil
}

func readLine(r *tagged.Reader, version uint8) (*scene.Line, error) {
	line := &scene.Line{}
	tool, err := r.ReadInt(1)
	if err != nil {
		return nil, err
	}
	color, err := r.ReadInt(2)
	if err != nil {
		return nil, err
	}
	line.Tool, line.Color = scene.Pen(tool), scene.PenColor(color)
	if line.ThicknessScale, err = r.ReadDouble(3); err != nil {
		return nil, err
	}
	if line.StartingLength, err = r.ReadFloat(4); err != nil {
		return nil, err
	}
	sub, err := r.Subblock(5)
	if err != nil {
		return nil, err
	}
	if line.Points, err = readPoints(sub, version); err != nil {
		return nil, err
	}
	if line.Timestamp, err = r.ReadID(6); err != nil {
		return nil, err
	}
	moveID, ok, err := r.ReadIDOptional(7)
	if err != nil {
		return nil, err
	}
	if ok {
		line.MoveID = &moveID
	}
	return line, nil
}

func pointSize(version uint8) (int, error) {
	switch version {
	case 1:
		return pointSizeV1, nil
	case 2:
		return pointSizeV2, nil
	}
	return 0, fmt.Errorf("point version %d: %w", version, diag.ErrSchemaMismatch)
}

func readPoints(r *tagged.Reader, version uint8) ([]scene.Point, error) {
	size, err := pointSize(version)
	if err != nil {
		return nil, err
	}
	if r.Len()%size != 0 {
		return nil, fmt.Errorf("point data of %d bytes is not a multiple of %d: %w",
			r.Len(), size, diag.ErrSchemaMismatch)
	}
	points := make([]scene.Point, 0, r.Len()/size)
	for r.Remaining() > 0 {
		p, err := readPoint(r, version)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func readPoint(r *tagged.Reader, version uint8) (scene.Point, error) {
	var f [6]float32
	n := 2
	if version == 1 {
		n = 6
	}
	for i := 0; i < n; i++ {
		v, err := r.Float32()
		if err != nil {
			return scene.Point{}, err
		}
		f[i] = v
	}
	if version == 1 {
		return scene.NewPointV1(f[0], f[1], f[2], f[3], f[4], f[5]), nil
	}

	p := scene.Point{X: f[0], Y: f[1]}
	var err error
	if p.Speed, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.Width, err = r.Uint16(); err != nil {
		return p, err
	}
	if p.Direction, err = r.Uint8(); err != nil {
		return p, err
	}
	if p.Pressure, err = r.Uint8(); err != nil {
		return p, err
	}
	return p, nil
}

func writePoint(w *tagged.Writer, p scene.Point, version uint8) {
	w.PutFloat32(p.X)
	w.PutFloat32(p.Y)
	if version == 1 {
		speed, direction, width, pressure := p.V1()
		w.PutFloat32(speed)
		w.PutFloat32(direction)
		w.PutFloat32(width)
		w.PutFloat32(pressure)
		return
	}
	w.PutUint16(p.Speed)
	w.PutUint16(p.Width)
	w.PutUint8(p.Direction)
	w.PutUint8(p.Pressure)
}

func (b *SceneLineItemBlock) pointVersion(e *encoder) uint8 {
	return e.pointVersion(b.CurrentVersion, b.Framed)
}

func (b *SceneLineItemBlock) encode(w *tagged.Writer, e *encoder) {
	b.ItemHeader.write(w)
	if b.Value == nil {
		return
	}
	line := b.Value
	version := b.pointVersion(e)
	writeItemValue(w, ItemTypeLine, b.ValueExtra, func(sub *tagged.Writer) {
		sub.WriteInt(1, uint32(line.Tool))
		sub.WriteInt(2, uint32(line.Color))
		sub.WriteDouble(3, line.ThicknessScale)
		sub.WriteFloat(4, line.StartingLength)
		sub.WriteSubblock(5, func(pts *tagged.Writer) {
			for _, p := range line.Points {
				writePoint(pts, p, version)
			}
		})
		sub.WriteID(6, line.Timestamp)
		if line.MoveID != nil {
			sub.WriteID(7, *line.MoveID)
		}
	})
}

// SceneGlyphItemBlock places a highlighted text range in a group.
type SceneGlyphItemBlock struct {
	Info
	ItemHeader
	Value      *scene.GlyphRange
	ValueExtra []byte

	// ValueLeftovers holds unread bytes of the subblocks inside the value.
	ValueLeftovers tagged.Leftovers
}

// Type implements Block.
func (*SceneGlyphItemBlock) Type() uint8 { return TypeSceneGlyphItem }

func decodeGlyphItem(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	h, err := readItemHeader(r)
	if err != nil {
		return nil, err
	}
	b := &SceneGlyphItemBlock{ItemHeader: h}
	sub, err := readItemValue(r, ItemTypeGlyph)
	if err != nil || sub == nil {
		return b, err
	}
	sub.Keep(&b.ValueLeftovers)
	if b.Value, err = readGlyphRange(sub); err != nil {
		return nil, err
	}
	b.ValueExtra = sub.Rest()
	return b, nil
}

func readGlyphRange(r *tagged.Reader) (*scene.GlyphRange, error) {
	g := &scene.GlyphRange{}
	start, ok, err := r.ReadIntOptional(2)
	if err != nil {
		return nil, err
	}
	if ok {
		g.Start = &start
	}
	length, ok, err := r.ReadIntOptional(3)
	if err != nil {
		return nil, err
	}
	if ok {
		g.Length = &length
	}
	color, err := r.ReadInt(4)
	if err != nil {
		return nil, err
	}
	g.Color = scene.PenColor(color)
	if g.Text, err = r.ReadString(5); err != nil {
		return nil, err
	}

	sub, err := r.Subblock(6)
	if err != nil {
		return nil, err
	}
	n, err := sub.VarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(sub.Remaining())/32 {
		return nil, fmt.Errorf("%d rectangles: %w", n, diag.ErrTruncatedData)
	}
	for i := uint64(0); i < n; i++ {
		var v [4]float64
		for j := range v {
			if v[j], err = sub.Float64(); err != nil {
				return nil, err
			}
		}
		g.Rectangles = append(g.Rectangles, scene.Rectangle{X: v[0], Y: v[1], W: v[2], H: v[3]})
	}
	if err := sub.End("rectangles"); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *SceneGlyphItemBlock) encode(w *tagged.Writer, _ *encoder) {
	b.ItemHeader.write(w)
	if b.Value == nil {
		return
	}
	g := b.Value
	writeItemValue(w, ItemTypeGlyph, b.ValueExtra, func(sub *tagged.Writer) {
		sub.Restore(b.ValueLeftovers)
		if g.Start != nil {
			sub.WriteInt(2, *g.Start)
		}
		if g.Length != nil {
			sub.WriteInt(3, *g.Length)
		}
		sub.WriteInt(4, uint32(g.Color))
		sub.WriteString(5, g.Text)
		sub.WriteSubblock(6, func(rects *tagged.Writer) {
			rects.PutVarUint(uint64(len(g.Rectangles)))
			for _, rc := range g.Rectangles {
				rects.PutFloat64(rc.X)
				rects.PutFloat64(rc.Y)
				rects.PutFloat64(rc.W)
				rects.PutFloat64(rc.H)
			}
		})
	})
}

// SceneTextItemBlock places a text box in a group.
type SceneTextItemBlock struct {
	Info
	ItemHeader
	Value      *TextBody
	ValueExtra []byte
}

// Type implements Block.
func (*SceneTextItemBlock) Type() uint8 { return TypeSceneTextItem }

func decodeTextItem(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	h, err := readItemHeader(r)
	if err != nil {
		return nil, err
	}
	b := &SceneTextItemBlock{ItemHeader: h}
	sub, err := readItemValue(r, ItemTypeText)
	if err != nil || sub == nil {
		return b, err
	}
	if b.Value, err = readTextBody(sub); err != nil {
		return nil, err
	}
	b.ValueExtra = sub.Rest()
	return b, nil
}

func (b *SceneTextItemBlock) encode(w *tagged.Writer, e *encoder) {
	b.ItemHeader.write(w)
	if b.Value != nil {
		writeItemValue(w, ItemTypeText, b.ValueExtra, func(sub *tagged.Writer) {
			b.Value.write(sub, e)
		})
	}
}

// SceneTombstoneItemBlock records a deleted item. Any value it carries is
// kept as raw bytes.
type SceneTombstoneItemBlock struct {
	Info
	ItemHeader
	RawValue []byte
	HasValue bool
}

// Type implements Block.
func (*SceneTombstoneItemBlock) Type() uint8 { return TypeSceneTombstone }

func decodeTombstone(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	h, err := readItemHeader(r)
	if err != nil {
		return nil, err
	}
	b := &SceneTombstoneItemBlock{ItemHeader: h}
	if r.HasSubblock(6) {
		sub, err := r.Subblock(6)
		if err != nil {
			return nil, err
		}
		b.RawValue, b.HasValue = sub.Rest(), true
	}
	return b, nil
}

func (b *SceneTombstoneItemBlock) encode(w *tagged.Writer, _ *encoder) {
	b.ItemHeader.write(w)
	if b.HasValue {
		w.WriteSubblock(6, func(sub *tagged.Writer) {
			sub.PutBytes(b.RawValue)
		})
	}
}
