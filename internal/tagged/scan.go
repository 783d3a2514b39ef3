package tagged

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
)

// Value is one tagged value found by Scan. Raw holds the payload without the
// tag; for subblocks it is the body without the length prefix. Offset is the
// position of the tag and RawOffset that of Raw.
type Value struct {
	Index     uint64
	Type      TagType
	Offset    int
	RawOffset int
	Raw       []byte
	ID        crdt.ID
}

// Uint32 interprets a 4-byte payload.
func (v Value) Uint32() uint32 {
	if len(v.Raw) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v.Raw)
}

// Float32 interprets a 4-byte payload.
func (v Value) Float32() float32 {
	return math.Float32frombits(v.Uint32())
}

// Float64 interprets an 8-byte payload.
func (v Value) Float64() float64 {
	if len(v.Raw) != 8 {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Raw))
}

func (v Value) String() string {
	switch v.Type {
	case TagID:
		return fmt.Sprintf("%d: id %s", v.Index, v.ID)
	case TagByte1:
		return fmt.Sprintf("%d: byte %d", v.Index, v.Raw[0])
	case TagByte4:
		return fmt.Sprintf("%d: int %d / float %g", v.Index, v.Uint32(), v.Float32())
	case TagByte8:
		return fmt.Sprintf("%d: double %g", v.Index, v.Float64())
	default:
		return fmt.Sprintf("%d: subblock [%d bytes]", v.Index, len(v.Raw))
	}
}

// Scan decodes data as a flat list of tagged values. It stops at the first
// byte sequence that is not a valid tagged value, returning the values read
// so far and the error.
func Scan(data []byte) ([]Value, error) {
	return ScanAt(data, 0)
}

// ScanAt is Scan with offsets reported relative to base.
func ScanAt(data []byte, base int) ([]Value, error) {
	r := NewReaderAt(data, base)
	var out []Value
	for r.Remaining() > 0 {
		at := r.Offset()
		index, typ, err := r.PeekTag()
		if err != nil {
			return out, err
		}
		if !typ.Valid() {
			return out, fmt.Errorf("tag type 0x%x at offset %d: %w", uint8(typ), at, diag.ErrSchemaMismatch)
		}
		if err := r.Tag(index, typ); err != nil {
			return out, err
		}
		v := Value{Index: index, Type: typ, Offset: at, RawOffset: r.Offset()}
		switch typ {
		case TagID:
			start := r.pos
			v.ID, err = r.CrdtID()
			if err == nil {
				v.Raw = r.data[start:r.pos]
			}
		case TagLength4:
			var n uint32
			if n, err = r.Uint32(); err == nil {
				v.RawOffset = r.Offset()
				v.Raw, err = r.Bytes(int(n))
			}
		case TagByte8:
			v.Raw, err = r.Bytes(8)
		case TagByte4:
			v.Raw, err = r.Bytes(4)
		case TagByte1:
			v.Raw, err = r.Bytes(1)
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dump renders data as an indented tree of tagged values, descending into
// subblocks that themselves scan cleanly. Each line ends with the offset of
// its tag.
func Dump(data []byte) string {
	return DumpAt(data, 0)
}

// DumpAt is Dump with offsets reported relative to base.
func DumpAt(data []byte, base int) string {
	var b strings.Builder
	dump(&b, data, base, 0)
	return b.String()
}

func dump(b *strings.Builder, data []byte, base, depth int) {
	values, err := ScanAt(data, base)
	indent := strings.Repeat("  ", depth)
	for _, v := range values {
		fmt.Fprintf(b, "%s%s  @%d\n", indent, v, v.Offset)
		if v.Type == TagLength4 && len(v.Raw) > 0 {
			if _, err := Scan(v.Raw); err == nil {
				dump(b, v.Raw, v.RawOffset, depth+1)
			}
		}
	}
	if err != nil {
		fmt.Fprintf(b, "%s<raw: %v>\n", indent, err)
	}
}
