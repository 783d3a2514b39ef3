package blocks

import (
	"fmt"

	"github.com/google/uuid"

	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/tagged"
)

// MigrationInfoBlock records a document migration.
type MigrationInfoBlock struct {
	Info
	MigrationID crdt.ID
	IsDevice    bool

	Unknown    bool
	HasUnknown bool
}

// Type implements Block.
func (*MigrationInfoBlock) Type() uint8 { return TypeMigrationInfo }

func decodeMigrationInfo(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	b := &MigrationInfoBlock{}
	var err error
	if b.MigrationID, err = r.ReadID(1); err != nil {
		return nil, err
	}
	if b.IsDevice, err = r.ReadBool(2); err != nil {
		return nil, err
	}
	if b.Unknown, b.HasUnknown, err = r.ReadBoolOptional(3); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MigrationInfoBlock) encode(w *tagged.Writer, _ *encoder) {
	w.WriteID(1, b.MigrationID)
	w.WriteBool(2, b.IsDevice)
	if b.HasUnknown {
		w.WriteBool(3, b.Unknown)
	}
}

// AuthorID maps a short author number used in CRDT ids to a device UUID.
type AuthorID struct {
	Author uint16
	UUID   uuid.UUID

	// Extra holds unread bytes after the author number.
	Extra tagged.Leftovers
}

// AuthorIDsBlock lists the authors that wrote to the page.
type AuthorIDsBlock struct {
	Info
	Authors []AuthorID
}

// Type implements Block.
func (*AuthorIDsBlock) Type() uint8 { return TypeAuthorIDs }

// Lookup returns the UUID for an author number.
func (b *AuthorIDsBlock) Lookup(author uint16) (uuid.UUID, bool) {
	for _, a := range b.Authors {
		if a.Author == author {
			return a.UUID, true
		}
	}
	return uuid.Nil, false
}

// UUIDs are stored with their first three fields little-endian.
func swapUUIDEndian(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[1], u[2], u[3] = u[3], u[2], u[1], u[0]
	u[4], u[5] = u[5], u[4]
	u[6], u[7] = u[7], u[6]
	return u
}

func decodeAuthorIDs(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	n, err := r.VarUint()
	if err != nil {
		return nil, err
	}
	b := &AuthorIDsBlock{}
	for i := uint64(0); i < n; i++ {
		sub, err := r.Subblock(0)
		if err != nil {
			return nil, fmt.Errorf("author %d: %w", i, err)
		}
		var a AuthorID
		sub.Keep(&a.Extra)
		size, err := sub.VarUint()
		if err != nil {
			return nil, err
		}
		if size != 16 {
			return nil, fmt.Errorf("author uuid of %d bytes: %w", size, diag.ErrSchemaMismatch)
		}
		raw, err := sub.Bytes(16)
		if err != nil {
			return nil, err
		}
		author, err := sub.Uint16()
		if err != nil {
			return nil, err
		}
		if err := sub.End("author"); err != nil {
			return nil, err
		}
		a.Author, a.UUID = author, swapUUIDEndian(raw)
		b.Authors = append(b.Authors, a)
	}
	return b, nil
}

func (b *AuthorIDsBlock) encode(w *tagged.Writer, _ *encoder) {
	w.PutVarUint(uint64(len(b.Authors)))
	for _, a := range b.Authors {
		w.WriteSubblock(0, func(sub *tagged.Writer) {
			sub.Restore(a.Extra)
			raw := swapUUIDEndian(a.UUID[:])
			sub.PutVarUint(16)
			sub.PutBytes(raw[:])
			sub.PutUint16(a.Author)
		})
	}
}

// PageInfoBlock holds page statistics.
type PageInfoBlock struct {
	Info
	LoadsCount     uint32
	MergesCount    uint32
	TextCharsCount uint32
	TextLinesCount uint32

	TypeFolioUseCount    uint32
	HasTypeFolioUseCount bool
}

// Type implements Block.
func (*PageInfoBlock) Type() uint8 { return TypePageInfo }

func decodePageInfo(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	b := &PageInfoBlock{}
	fields := []*uint32{&b.LoadsCount, &b.MergesCount, &b.TextCharsCount, &b.TextLinesCount}
	for i, f := range fields {
		v, err := r.ReadInt(uint64(i + 1))
		if err != nil {
			return nil, err
		}
		*f = v
	}
	var err error
	b.TypeFolioUseCount, b.HasTypeFolioUseCount, err = r.ReadIntOptional(5)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *PageInfoBlock) encode(w *tagged.Writer, e *encoder) {
	w.WriteInt(1, b.LoadsCount)
	w.WriteInt(2, b.MergesCount)
	w.WriteInt(3, b.TextCharsCount)
	w.WriteInt(4, b.TextLinesCount)
	if e.include(b.HasTypeFolioUseCount, versionTypeFolio) {
		w.WriteInt(5, b.TypeFolioUseCount)
	}
}

// SceneInfoBlock holds page-level view settings.
type SceneInfoBlock struct {
	Info
	CurrentLayer        crdt.LWW[crdt.ID]
	BackgroundVisible   *crdt.LWW[bool]
	RootDocumentVisible *crdt.LWW[bool]
	PaperSize           *tagged.IntPair

	// Leftovers holds unread bytes inside the value subblocks.
	Leftovers tagged.Leftovers
}

// Type implements Block.
func (*SceneInfoBlock) Type() uint8 { return TypeSceneInfo }

func decodeSceneInfo(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	b := &SceneInfoBlock{}
	r.Keep(&b.Leftovers)
	var err error
	if b.CurrentLayer, err = r.ReadLwwID(1); err != nil {
		return nil, err
	}
	if r.HasSubblock(2) {
		v, err := r.ReadLwwBool(2)
		if err != nil {
			return nil, err
		}
		b.BackgroundVisible = &v
	}
	if r.HasSubblock(3) {
		v, err := r.ReadLwwBool(3)
		if err != nil {
			return nil, err
		}
		b.RootDocumentVisible = &v
	}
	if r.HasSubblock(5) {
		v, err := r.ReadIntPair(5)
		if err != nil {
			return nil, err
		}
		b.PaperSize = &v
	}
	return b, nil
}

func (b *SceneInfoBlock) encode(w *tagged.Writer, e *encoder) {
	w.Restore(b.Leftovers)
	w.WriteLwwID(1, b.CurrentLayer)
	if e.include(b.BackgroundVisible != nil, versionSceneInfo) {
		w.WriteLwwBool(2, *b.BackgroundVisible)
	}
	if e.include(b.RootDocumentVisible != nil, versionSceneInfo) {
		w.WriteLwwBool(3, *b.RootDocumentVisible)
	}
	if e.include(b.PaperSize != nil, versionSceneInfo) {
		w.WriteIntPair(5, *b.PaperSize)
	}
}
