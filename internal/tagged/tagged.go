// Package tagged implements the little-endian tagged value encoding that every
// block in a v6 scene file is built from.
//
// A tagged value starts with a varuint holding (index << 4 | type). The type
// nibble selects the payload width: a CRDT id, a 4-byte length followed by a
// nested subblock, or a fixed 8, 4 or 1 byte value.
package tagged

import "fmt"

// TagType is the low nibble of a tag.
type TagType uint8

const (
	TagID      TagType = 0xF
	TagLength4 TagType = 0xC
	TagByte8   TagType = 0x8
	TagByte4   TagType = 0x4
	TagByte1   TagType = 0x1
)

func (t TagType) String() string {
	switch t {
	case TagID:
		return "id"
	case TagLength4:
		return "length4"
	case TagByte8:
		return "byte8"
	case TagByte4:
		return "byte4"
	case TagByte1:
		return "byte1"
	default:
		return fmt.Sprintf("tagtype(0x%x)", uint8(t))
	}
}

// Valid reports whether t is one of the known tag types.
func (t TagType) Valid() bool {
	switch t {
	case TagID, TagLength4, TagByte8, TagByte4, TagByte1:
		return true
	}
	return false
}

const (
	// Header is the fixed file header of a v6 scene file.
	Header = "reMarkable .lines file, version=6          "

	// HeaderSize is the length of Header in bytes.
	HeaderSize = len(Header)

	// BlockHeaderSize is the size of a top-level block frame header.
	BlockHeaderSize = 8
)

// BlockHeader is the frame preceding every top-level block.
type BlockHeader struct {
	Length         uint32
	Flags          uint8
	MinVersion     uint8
	CurrentVersion uint8
	Type           uint8
}
