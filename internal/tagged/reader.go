package tagged

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
)

// Leftovers holds bytes a decoder left unread at the end of subblocks. Keys
// are paths of subblock indexes below the reader that kept them: "" for that
// reader's own tail, "2" for its subblock 2, "2/1" for subblock 1 inside it.
type Leftovers map[string][]byte

// Unread locates one tail kept in Leftovers.
type Unread struct {
	What   string
	Offset int
	Len    int
}

// Reader is a bounded cursor over a byte slice. Subblock readers cannot read
// past the end of their subblock.
type Reader struct {
	data []byte
	pos  int
	base int

	keep   *Leftovers
	path   string
	unread *[]Unread
}

// NewReader returns a reader over data. Offsets are reported from the start
// of data.
func NewReader(data []byte) *Reader {
	return NewReaderAt(data, 0)
}

// NewReaderAt returns a reader over data that reports offsets relative to
// base, the position of data within a larger buffer.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{data: data, base: base, unread: new([]Unread)}
}

// Keep makes End store unread bytes in dst instead of failing, for this
// reader and every subblock reader opened below it. dst stays nil while
// nothing is left over.
func (r *Reader) Keep(dst *Leftovers) {
	r.keep = dst
	r.path = ""
}

// Unread lists the tails kept so far by this reader and the readers opened
// from it.
func (r *Reader) Unread() []Unread {
	if r.unread == nil || len(*r.unread) == 0 {
		return nil
	}
	return append([]Unread(nil), *r.unread...)
}

func subPath(parent string, index uint64) string {
	if parent == "" {
		return strconv.FormatUint(index, 10)
	}
	return parent + "/" + strconv.FormatUint(index, 10)
}

// Offset returns the absolute offset of the cursor.
func (r *Reader) Offset() int { return r.base + r.pos }

// Len returns the total size of the readable region.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Rest consumes and returns every unread byte, or nil when there are none.
func (r *Reader) Rest() []byte {
	if r.pos >= len(r.data) {
		return nil
	}
	rest := r.data[r.pos:]
	r.pos = len(r.data)
	return rest
}

// ExpectEnd fails with ErrUnreadData when bytes remain.
func (r *Reader) ExpectEnd(what string) error {
	if n := r.Remaining(); n > 0 {
		return fmt.Errorf("%s: %d bytes left at offset %d: %w", what, n, r.Offset(), diag.ErrUnreadData)
	}
	return nil
}

// End is ExpectEnd for a reader under Keep: remaining bytes are consumed and
// stored rather than reported as an error.
func (r *Reader) End(what string) error {
	n := r.Remaining()
	if n == 0 || r.keep == nil {
		return r.ExpectEnd(what)
	}
	at := r.Offset()
	if *r.keep == nil {
		*r.keep = Leftovers{}
	}
	(*r.keep)[r.path] = r.Rest()
	if r.unread != nil {
		*r.unread = append(*r.unread, Unread{What: what, Offset: at, Len: n})
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d: %w",
			n, r.Offset(), r.Remaining(), diag.ErrTruncatedData)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// Uint8 reads one raw byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a raw little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a raw little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Float32 reads a raw little-endian float32.
func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

// Float64 reads a raw little-endian float64.
func (r *Reader) Float64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// Flag reads a raw one-byte boolean. Any value other than 0 or 1 is a
// schema mismatch, since it would not re-encode to the same byte.
func (r *Reader) Flag() (bool, error) {
	at := r.Offset()
	b, err := r.Uint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("bool byte 0x%02x at offset %d: %w", b, at, diag.ErrSchemaMismatch)
}

// VarUint reads an unsigned LEB128 integer.
func (r *Reader) VarUint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	switch {
	case n == 0:
		return 0, fmt.Errorf("varuint at offset %d: %w", r.Offset(), diag.ErrTruncatedData)
	case n < 0:
		return 0, fmt.Errorf("varuint overflow at offset %d: %w", r.Offset(), diag.ErrSchemaMismatch)
	}
	r.pos += n
	return v, nil
}

// CrdtID reads an untagged id: one author byte and a varuint counter.
func (r *Reader) CrdtID() (crdt.ID, error) {
	author, err := r.Uint8()
	if err != nil {
		return crdt.ID{}, err
	}
	counter, err := r.VarUint()
	if err != nil {
		return crdt.ID{}, err
	}
	return crdt.ID{Author: uint64(author), Counter: counter}, nil
}

// PeekTag decodes the next tag without consuming it.
func (r *Reader) PeekTag() (index uint64, typ TagType, err error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("tag at offset %d: %w", r.Offset(), diag.ErrTruncatedData)
	}
	return v >> 4, TagType(v & 0xF), nil
}

// Has reports whether the next tag has the given index and type. It never
// advances the cursor.
func (r *Reader) Has(index uint64, typ TagType) bool {
	i, t, err := r.PeekTag()
	return err == nil && i == index && t == typ
}

// HasSubblock reports whether a subblock with the given index is next.
func (r *Reader) HasSubblock(index uint64) bool {
	return r.Has(index, TagLength4)
}

// Tag consumes the next tag, which must match index and typ. On mismatch the
// cursor is left unchanged.
func (r *Reader) Tag(index uint64, typ TagType) error {
	at := r.Offset()
	i, t, err := r.PeekTag()
	if err != nil {
		return err
	}
	if i != index || t != typ {
		return fmt.Errorf("expected tag %d/%s, found %d/%s at offset %d: %w",
			index, typ, i, t, at, diag.ErrSchemaMismatch)
	}
	_, _ = r.VarUint()
	return nil
}

// readTagged consumes a tag and runs read; if read fails the cursor is rewound so
// the field can be read again.
func readTagged[T any](r *Reader, index uint64, typ TagType, read func() (T, error)) (T, error) {
	start := r.pos
	var zero T
	if err := r.Tag(index, typ); err != nil {
		return zero, err
	}
	v, err := read()
	if err != nil {
		r.pos = start
		return zero, err
	}
	return v, nil
}

// ReadID reads a tagged CRDT id.
func (r *Reader) ReadID(index uint64) (crdt.ID, error) {
	return readTagged(r, index, TagID, r.CrdtID)
}

// ReadBool reads a tagged boolean.
func (r *Reader) ReadBool(index uint64) (bool, error) {
	return readTagged(r, index, TagByte1, r.Flag)
}

// ReadUint8 reads a tagged byte.
func (r *Reader) ReadUint8(index uint64) (uint8, error) {
	return readTagged(r, index, TagByte1, r.Uint8)
}

// ReadInt reads a tagged 4-byte unsigned integer.
func (r *Reader) ReadInt(index uint64) (uint32, error) {
	return readTagged(r, index, TagByte4, r.Uint32)
}

// ReadFloat reads a tagged 4-byte float.
func (r *Reader) ReadFloat(index uint64) (float32, error) {
	return readTagged(r, index, TagByte4, r.Float32)
}

// ReadDouble reads a tagged 8-byte float.
func (r *Reader) ReadDouble(index uint64) (float64, error) {
	return readTagged(r, index, TagByte8, r.Float64)
}

// ReadIDOptional reads a tagged id if one with this index is next.
func (r *Reader) ReadIDOptional(index uint64) (crdt.ID, bool, error) {
	if !r.Has(index, TagID) {
		return crdt.ID{}, false, nil
	}
	v, err := r.ReadID(index)
	return v, err == nil, err
}

// ReadBoolOptional reads a tagged boolean if one with this index is next.
func (r *Reader) ReadBoolOptional(index uint64) (bool, bool, error) {
	if !r.Has(index, TagByte1) {
		return false, false, nil
	}
	v, err := r.ReadBool(index)
	return v, err == nil, err
}

// ReadIntOptional reads a tagged integer if one with this index is next.
func (r *Reader) ReadIntOptional(index uint64) (uint32, bool, error) {
	if !r.Has(index, TagByte4) {
		return 0, false, nil
	}
	v, err := r.ReadInt(index)
	return v, err == nil, err
}

// Subblock reads a length-prefixed subblock and returns a reader bounded to
// it. The parent cursor moves past the whole subblock.
func (r *Reader) Subblock(index uint64) (*Reader, error) {
	start := r.pos
	if err := r.Tag(index, TagLength4); err != nil {
		return nil, err
	}
	n, err := r.Uint32()
	if err != nil {
		r.pos = start
		return nil, err
	}
	at := r.Offset()
	body, err := r.take(int(n))
	if err != nil {
		r.pos = start
		return nil, fmt.Errorf("subblock %d: %w", index, err)
	}
	return &Reader{
		data:   body,
		base:   at,
		keep:   r.keep,
		path:   subPath(r.path, index),
		unread: r.unread,
	}, nil
}

// leaf reads a subblock whose contents must be consumed exactly, unless the
// reader keeps leftovers.
func leaf[T any](r *Reader, index uint64, what string, read func(*Reader) (T, error)) (T, error) {
	var zero T
	start := r.pos
	sub, err := r.Subblock(index)
	if err != nil {
		return zero, err
	}
	v, err := read(sub)
	if err == nil {
		err = sub.End(what)
	}
	if err != nil {
		r.pos = start
		return zero, fmt.Errorf("%s %d: %w", what, index, err)
	}
	return v, nil
}

// ReadString reads a string subblock: varuint byte length, an "is ascii"
// flag and the UTF-8 bytes.
func (r *Reader) ReadString(index uint64) (string, error) {
	return leaf(r, index, "string", readStringBody)
}

func readStringBody(sub *Reader) (string, error) {
	n, err := sub.VarUint()
	if err != nil {
		return "", err
	}
	ascii, err := sub.Flag()
	if err != nil {
		return "", err
	}
	if !ascii {
		return "", fmt.Errorf("string flag 0 at offset %d: %w", sub.Offset(), diag.ErrSchemaMismatch)
	}
	if n > uint64(sub.Remaining()) {
		return "", fmt.Errorf("string of %d bytes: %w", n, diag.ErrTruncatedData)
	}
	b, err := sub.Bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("string is not utf-8: %w", diag.ErrSchemaMismatch)
	}
	return string(b), nil
}

// StringWithFormat is a string optionally carrying an inline format code.
type StringWithFormat struct {
	Text      string
	Format    uint32
	HasFormat bool
}

// ReadStringWithFormat reads a string subblock that may end with a tagged
// format code at index 2.
func (r *Reader) ReadStringWithFormat(index uint64) (StringWithFormat, error) {
	return leaf(r, index, "string", func(sub *Reader) (StringWithFormat, error) {
		var out StringWithFormat
		s, err := readStringBody(sub)
		if err != nil {
			return out, err
		}
		out.Text = s
		out.Format, out.HasFormat, err = sub.ReadIntOptional(2)
		return out, err
	})
}

// IntPair is two unsigned integers stored in one subblock.
type IntPair struct {
	A, B uint32
}

// ReadIntPair reads a subblock holding two raw uint32 values.
func (r *Reader) ReadIntPair(index uint64) (IntPair, error) {
	return leaf(r, index, "int pair", func(sub *Reader) (IntPair, error) {
		a, err := sub.Uint32()
		if err != nil {
			return IntPair{}, err
		}
		b, err := sub.Uint32()
		return IntPair{A: a, B: b}, err
	})
}

func readLww[T any](r *Reader, index uint64, read func(*Reader) (T, error)) (crdt.LWW[T], error) {
	return leaf(r, index, "lww", func(sub *Reader) (crdt.LWW[T], error) {
		ts, err := sub.ReadID(1)
		if err != nil {
			return crdt.LWW[T]{}, err
		}
		v, err := read(sub)
		return crdt.NewLWW(ts, v), err
	})
}

// ReadLwwID reads a last-write-wins id.
func (r *Reader) ReadLwwID(index uint64) (crdt.LWW[crdt.ID], error) {
	return readLww(r, index, func(sub *Reader) (crdt.ID, error) { return sub.ReadID(2) })
}

// ReadLwwBool reads a last-write-wins boolean.
func (r *Reader) ReadLwwBool(index uint64) (crdt.LWW[bool], error) {
	return readLww(r, index, func(sub *Reader) (bool, error) { return sub.ReadBool(2) })
}

// ReadLwwUint8 reads a last-write-wins byte.
func (r *Reader) ReadLwwUint8(index uint64) (crdt.LWW[uint8], error) {
	return readLww(r, index, func(sub *Reader) (uint8, error) { return sub.ReadUint8(2) })
}

// ReadLwwFloat reads a last-write-wins 4-byte float.
func (r *Reader) ReadLwwFloat(index uint64) (crdt.LWW[float32], error) {
	return readLww(r, index, func(sub *Reader) (float32, error) { return sub.ReadFloat(2) })
}

// ReadLwwString reads a last-write-wins string.
func (r *Reader) ReadLwwString(index uint64) (crdt.LWW[string], error) {
	return readLww(r, index, func(sub *Reader) (string, error) { return sub.ReadString(2) })
}

// ReadHeader consumes and checks the file header.
func (r *Reader) ReadHeader() error {
	b, err := r.take(HeaderSize)
	if err != nil {
		return fmt.Errorf("%w: %w", diag.ErrInvalidHeader, err)
	}
	if string(b) != Header {
		return fmt.Errorf("%w: got %q", diag.ErrInvalidHeader, b)
	}
	return nil
}

// ReadBlockHeader reads a top-level block frame header.
func (r *Reader) ReadBlockHeader() (BlockHeader, error) {
	b, err := r.take(BlockHeaderSize)
	if err != nil {
		return BlockHeader{}, err
	}
	return BlockHeader{
		Length:         binary.LittleEndian.Uint32(b[0:4]),
		Flags:          b[4],
		MinVersion:     b[5],
		CurrentVersion: b[6],
		Type:           b[7],
	}, nil
}
