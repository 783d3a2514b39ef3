// Package blocks decodes and encodes the top-level blocks of a v6 scene file.
//
// Every block type has a fixed schema of tagged fields. A block that cannot be
// decoded, including one of an unknown type, becomes an UnreadableBlock that
// keeps its original bytes, so a file always re-encodes losslessly.
package blocks

import (
	"fmt"

	"rmlines/internal/diag"
	"rmlines/internal/tagged"
)

// Block type tags.
const (
	TypeMigrationInfo  uint8 = 0x00
	TypeSceneTree      uint8 = 0x01
	TypeTreeNode       uint8 = 0x02
	TypeSceneGlyphItem uint8 = 0x03
	TypeSceneGroupItem uint8 = 0x04
	TypeSceneLineItem  uint8 = 0x05
	TypeSceneTextItem  uint8 = 0x06
	TypeRootText       uint8 = 0x07
	TypeSceneTombstone uint8 = 0x08
	TypeAuthorIDs      uint8 = 0x09
	TypePageInfo       uint8 = 0x0A
	TypeSceneInfo      uint8 = 0x0D
)

// Block is one decoded top-level block.
type Block interface {
	// Type returns the block type tag.
	Type() uint8
	// Frame returns the frame details kept from decoding.
	Frame() *Info

	encode(w *tagged.Writer, e *encoder)
}

// Info holds what a decoded block keeps besides its fields: the frame header
// and any trailing bytes the decoder did not understand.
type Info struct {
	Flags          uint8
	MinVersion     uint8
	CurrentVersion uint8

	// Framed is set when the header values were read from a file.
	Framed bool

	// Extra holds unread bytes at the end of the block payload.
	Extra []byte

	// Nested lists the unread bytes kept inside the block's subblocks. They
	// are written back with the fields that hold them.
	Nested []tagged.Unread
}

// Frame implements Block.
func (i *Info) Frame() *Info { return i }

func (i *Info) setHeader(h tagged.BlockHeader) {
	i.Flags = h.Flags
	i.MinVersion = h.MinVersion
	i.CurrentVersion = h.CurrentVersion
	i.Framed = true
}

// defaultVersions are the (min, current) versions written for blocks built in
// memory.
var defaultVersions = map[uint8][2]uint8{
	TypeMigrationInfo:  {1, 1},
	TypeSceneTree:      {1, 1},
	TypeTreeNode:       {1, 1},
	TypeSceneGlyphItem: {0, 1},
	TypeSceneGroupItem: {0, 1},
	TypeSceneLineItem:  {2, 2},
	TypeSceneTextItem:  {0, 1},
	TypeRootText:       {0, 1},
	TypeSceneTombstone: {0, 1},
	TypeAuthorIDs:      {1, 1},
	TypePageInfo:       {0, 1},
	TypeSceneInfo:      {0, 1},
}

func frameHeader(b Block) tagged.BlockHeader {
	info := b.Frame()
	h := tagged.BlockHeader{Type: b.Type()}
	if info.Framed {
		h.Flags = info.Flags
		h.MinVersion = info.MinVersion
		h.CurrentVersion = info.CurrentVersion
	} else if v, ok := defaultVersions[b.Type()]; ok {
		h.MinVersion, h.CurrentVersion = v[0], v[1]
	}
	return h
}

// decoder reads the payload of one block type.
type decoder func(r *tagged.Reader, h tagged.BlockHeader) (Block, error)

// registry maps block type tags to decoders.
var registry = map[uint8]decoder{
	TypeMigrationInfo:  decodeMigrationInfo,
	TypeSceneTree:      decodeSceneTree,
	TypeTreeNode:       decodeTreeNode,
	TypeSceneGlyphItem: decodeGlyphItem,
	TypeSceneGroupItem: decodeGroupItem,
	TypeSceneLineItem:  decodeLineItem,
	TypeSceneTextItem:  decodeTextItem,
	TypeRootText:       decodeRootText,
	TypeSceneTombstone: decodeTombstone,
	TypeAuthorIDs:      decodeAuthorIDs,
	TypePageInfo:       decodePageInfo,
	TypeSceneInfo:      decodeSceneInfo,
}

// Known reports whether a decoder is registered for the block type.
func Known(blockType uint8) bool {
	_, ok := registry[blockType]
	return ok
}

// TypeName returns a readable name for a block type.
func TypeName(blockType uint8) string {
	switch blockType {
	case TypeMigrationInfo:
		return "MigrationInfo"
	case TypeSceneTree:
		return "SceneTree"
	case TypeTreeNode:
		return "TreeNode"
	case TypeSceneGlyphItem:
		return "SceneGlyphItem"
	case TypeSceneGroupItem:
		return "SceneGroupItem"
	case TypeSceneLineItem:
		return "SceneLineItem"
	case TypeSceneTextItem:
		return "SceneTextItem"
	case TypeRootText:
		return "RootText"
	case TypeSceneTombstone:
		return "SceneTombstoneItem"
	case TypeAuthorIDs:
		return "AuthorIds"
	case TypePageInfo:
		return "PageInfo"
	case TypeSceneInfo:
		return "SceneInfo"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", blockType)
	}
}

// Decode decodes one block payload. It never fails: unknown types and decoder
// errors produce an UnreadableBlock holding payload unchanged. offset is the
// absolute position of payload, used in error messages.
func Decode(h tagged.BlockHeader, payload []byte, offset int) Block {
	dec, ok := registry[h.Type]
	if !ok {
		return newUnreadable(h, payload,
			fmt.Errorf("type 0x%02x: %w", h.Type, diag.ErrUnknownBlockType))
	}

	r := tagged.NewReaderAt(payload, offset)
	b, err := dec(r, h)
	if err != nil {
		return newUnreadable(h, payload, fmt.Errorf("%s: %w", TypeName(h.Type), err))
	}
	info := b.Frame()
	info.setHeader(h)
	info.Nested = r.Unread()
	info.Extra = r.Rest()
	return b
}

// UnreadableBlock is a block this package could not decode.
type UnreadableBlock struct {
	Info
	BlockType uint8
	// Data is the untouched payload.
	Data []byte
	// Raw, when set, replaces the whole frame on write. It holds the bytes
	// of a frame whose declared length ran past the end of the file.
	Raw []byte
	Err error
}

func newUnreadable(h tagged.BlockHeader, payload []byte, err error) *UnreadableBlock {
	u := &UnreadableBlock{BlockType: h.Type, Data: payload, Err: err}
	u.setHeader(h)
	return u
}

// Type implements Block.
func (u *UnreadableBlock) Type() uint8 { return u.BlockType }

// Reason describes why the block could not be decoded.
func (u *UnreadableBlock) Reason() string {
	if u.Err == nil {
		return "unreadable"
	}
	return u.Err.Error()
}

func (u *UnreadableBlock) encode(w *tagged.Writer, _ *encoder) {
	w.PutBytes(u.Data)
}
