package blocks

import (
	"fmt"

	"rmlines/internal/diag"
	"rmlines/internal/tagged"
)

// ReadBlocks decodes a whole file. Only a missing or wrong header is an
// error; every other problem is recovered and reported as a diagnostic.
func ReadBlocks(data []byte) ([]Block, []diag.Diagnostic, error) {
	r := tagged.NewReader(data)
	if err := r.ReadHeader(); err != nil {
		return nil, nil, err
	}

	var (
		out   []Block
		diags []diag.Diagnostic
	)
	for index := 0; r.Remaining() > 0; index++ {
		start := r.Offset()
		h, err := r.ReadBlockHeader()
		if err != nil {
			// Fewer bytes than a frame header: keep them verbatim.
			raw := data[start:]
			r.Rest()
			u := &UnreadableBlock{BlockType: 0xFF, Raw: raw, Err: err}
			out = append(out, u)
			diags = append(diags, diag.FromError(index, u.BlockType, start, err))
			break
		}

		payloadAt := r.Offset()
		payload, err := r.Bytes(int(h.Length))
		if err != nil {
			raw := data[start:]
			r.Rest()
			err = fmt.Errorf("block of %d bytes: %w", h.Length, err)
			u := newUnreadable(h, data[payloadAt:], err)
			u.Raw = raw
			out = append(out, u)
			diags = append(diags, diag.FromError(index, h.Type, start, err))
			break
		}

		b := Decode(h, payload, payloadAt)
		out = append(out, b)
		if u, ok := b.(*UnreadableBlock); ok {
			diags = append(diags, diag.FromError(index, h.Type, start, u.Err))
			continue
		}
		for _, u := range b.Frame().Nested {
			diags = append(diags, diag.FromError(index, h.Type, start,
				fmt.Errorf("%s: %d bytes left in %s at offset %d kept: %w",
					TypeName(h.Type), u.Len, u.What, u.Offset, diag.ErrUnreadData)))
		}
		if extra := b.Frame().Extra; len(extra) > 0 {
			diags = append(diags, diag.FromError(index, h.Type, start,
				fmt.Errorf("%s: %d trailing bytes kept: %w", TypeName(h.Type), len(extra), diag.ErrUnreadData)))
		}
	}
	return out, diags, nil
}

// WriteBlocks encodes blocks as a complete file.
func WriteBlocks(blocks []Block, opts Options) ([]byte, error) {
	e, err := newEncoder(opts)
	if err != nil {
		return nil, err
	}

	w := tagged.NewWriter()
	w.WriteHeader()
	for i, b := range blocks {
		if err := writeBlock(w, b, e); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeBlock encodes a single framed block.
func EncodeBlock(b Block, opts Options) ([]byte, error) {
	e, err := newEncoder(opts)
	if err != nil {
		return nil, err
	}
	w := tagged.NewWriter()
	if err := writeBlock(w, b, e); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeBlock(w *tagged.Writer, b Block, e *encoder) error {
	if u, ok := b.(*UnreadableBlock); ok && u.Raw != nil {
		w.PutBytes(u.Raw)
		return w.Err()
	}

	h := frameHeader(b)
	if line, ok := b.(*SceneLineItemBlock); ok && (e.emulating() || !line.Framed) && line.Value != nil {
		v := line.pointVersion(e)
		h.MinVersion, h.CurrentVersion = v, v
	}
	w.WriteBlock(h, func(body *tagged.Writer) {
		b.encode(body, e)
		body.PutBytes(b.Frame().Extra)
	})
	return w.Err()
}
