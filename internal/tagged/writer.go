package tagged

import (
	"encoding/binary"
	"fmt"
	"math"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
)

// Writer mirrors Reader. The first encoding error is kept and later writes
// become no-ops; check Err once the value is complete.
type Writer struct {
	buf []byte
	err error

	restore Leftovers
	path    string
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Restore makes every subblock written below w end with the tail kept for
// it in l, the inverse of Reader.Keep. The tail under "" is appended when the
// subblock holding w is closed.
func (w *Writer) Restore(l Leftovers) {
	w.restore = l
	w.path = ""
}

// Fail records err unless an earlier error is already held.
func (w *Writer) Fail(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// PutBytes appends raw bytes.
func (w *Writer) PutBytes(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// PutUint8 appends one raw byte.
func (w *Writer) PutUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// PutUint16 appends a raw little-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// PutUint32 appends a raw little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PutFloat32 appends a raw little-endian float32.
func (w *Writer) PutFloat32(v float32) {
	w.PutUint32(math.Float32bits(v))
}

// PutFloat64 appends a raw little-endian float64.
func (w *Writer) PutFloat64(v float64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// PutFlag appends a one-byte boolean.
func (w *Writer) PutFlag(v bool) {
	if v {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
}

// PutVarUint appends an unsigned LEB128 integer.
func (w *Writer) PutVarUint(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.AppendUvarint(w.buf, v)
}

// PutCrdtID appends an untagged id.
func (w *Writer) PutCrdtID(id crdt.ID) {
	if id.Author > math.MaxUint8 {
		w.Fail(fmt.Errorf("id %s: author does not fit in a byte: %w", id, diag.ErrInvalidValue))
		return
	}
	w.PutUint8(uint8(id.Author))
	w.PutVarUint(id.Counter)
}

// PutTag appends a tag.
func (w *Writer) PutTag(index uint64, typ TagType) {
	w.PutVarUint(index<<4 | uint64(typ))
}

// WriteID writes a tagged id.
func (w *Writer) WriteID(index uint64, id crdt.ID) {
	w.PutTag(index, TagID)
	w.PutCrdtID(id)
}

// WriteBool writes a tagged boolean.
func (w *Writer) WriteBool(index uint64, v bool) {
	w.PutTag(index, TagByte1)
	w.PutFlag(v)
}

// WriteUint8 writes a tagged byte.
func (w *Writer) WriteUint8(index uint64, v uint8) {
	w.PutTag(index, TagByte1)
	w.PutUint8(v)
}

// WriteInt writes a tagged 4-byte unsigned integer.
func (w *Writer) WriteInt(index uint64, v uint32) {
	w.PutTag(index, TagByte4)
	w.PutUint32(v)
}

// WriteFloat writes a tagged 4-byte float.
func (w *Writer) WriteFloat(index uint64, v float32) {
	w.PutTag(index, TagByte4)
	w.PutFloat32(v)
}

// WriteDouble writes a tagged 8-byte float.
func (w *Writer) WriteDouble(index uint64, v float64) {
	w.PutTag(index, TagByte8)
	w.PutFloat64(v)
}

// WriteSubblock writes a length-prefixed subblock whose body is produced by
// body.
func (w *Writer) WriteSubblock(index uint64, body func(*Writer)) {
	if w.err != nil {
		return
	}
	sub := &Writer{restore: w.restore, path: subPath(w.path, index)}
	body(sub)
	sub.PutBytes(sub.restore[sub.path])
	if sub.err != nil {
		w.Fail(sub.err)
		return
	}
	if uint64(len(sub.buf)) > math.MaxUint32 {
		w.Fail(fmt.Errorf("subblock %d of %d bytes: %w", index, len(sub.buf), diag.ErrInvalidValue))
		return
	}
	w.PutTag(index, TagLength4)
	w.PutUint32(uint32(len(sub.buf)))
	w.PutBytes(sub.buf)
}

func putStringBody(w *Writer, s string) {
	w.PutVarUint(uint64(len(s)))
	w.PutFlag(true)
	w.PutBytes([]byte(s))
}

// WriteString writes a string subblock.
func (w *Writer) WriteString(index uint64, s string) {
	w.WriteSubblock(index, func(sub *Writer) {
		putStringBody(sub, s)
	})
}

// WriteStringWithFormat writes a string subblock with an optional trailing
// format code.
func (w *Writer) WriteStringWithFormat(index uint64, v StringWithFormat) {
	w.WriteSubblock(index, func(sub *Writer) {
		putStringBody(sub, v.Text)
		if v.HasFormat {
			sub.WriteInt(2, v.Format)
		}
	})
}

// WriteIntPair writes two raw uint32 values in a subblock.
func (w *Writer) WriteIntPair(index uint64, v IntPair) {
	w.WriteSubblock(index, func(sub *Writer) {
		sub.PutUint32(v.A)
		sub.PutUint32(v.B)
	})
}

func writeLww[T any](w *Writer, index uint64, v crdt.LWW[T], put func(*Writer, T)) {
	w.WriteSubblock(index, func(sub *Writer) {
		sub.WriteID(1, v.Timestamp)
		put(sub, v.Value)
	})
}

// WriteLwwID writes a last-write-wins id.
func (w *Writer) WriteLwwID(index uint64, v crdt.LWW[crdt.ID]) {
	writeLww(w, index, v, func(sub *Writer, id crdt.ID) { sub.WriteID(2, id) })
}

// WriteLwwBool writes a last-write-wins boolean.
func (w *Writer) WriteLwwBool(index uint64, v crdt.LWW[bool]) {
	writeLww(w, index, v, func(sub *Writer, b bool) { sub.WriteBool(2, b) })
}

// WriteLwwUint8 writes a last-write-wins byte.
func (w *Writer) WriteLwwUint8(index uint64, v crdt.LWW[uint8]) {
	writeLww(w, index, v, func(sub *Writer, b uint8) { sub.WriteUint8(2, b) })
}

// WriteLwwFloat writes a last-write-wins 4-byte float.
func (w *Writer) WriteLwwFloat(index uint64, v crdt.LWW[float32]) {
	writeLww(w, index, v, func(sub *Writer, f float32) { sub.WriteFloat(2, f) })
}

// WriteLwwString writes a last-write-wins string.
func (w *Writer) WriteLwwString(index uint64, v crdt.LWW[string]) {
	writeLww(w, index, v, func(sub *Writer, s string) { sub.WriteString(2, s) })
}

// WriteHeader writes the file header.
func (w *Writer) WriteHeader() {
	w.PutBytes([]byte(Header))
}

// WriteBlock writes a top-level block frame. The length in h is ignored and
// recomputed from the body.
func (w *Writer) WriteBlock(h BlockHeader, body func(*Writer)) {
	if w.err != nil {
		return
	}
	sub := &Writer{}
	body(sub)
	if sub.err != nil {
		w.Fail(fmt.Errorf("block type 0x%02x: %w", h.Type, sub.err))
		return
	}
	w.PutUint32(uint32(len(sub.buf)))
	w.PutUint8(h.Flags)
	w.PutUint8(h.MinVersion)
	w.PutUint8(h.CurrentVersion)
	w.PutUint8(h.Type)
	w.PutBytes(sub.buf)
}
