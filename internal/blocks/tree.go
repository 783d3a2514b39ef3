package blocks

import (
	"rmlines/internal/crdt"
	"rmlines/internal/tagged"
)

// SceneTreeBlock declares a group node and the group it belongs to.
type SceneTreeBlock struct {
	Info
	TreeID   crdt.ID
	NodeID   crdt.ID
	IsUpdate bool
	ParentID crdt.ID

	// ParentExtra holds unread bytes of the parent subblock.
	ParentExtra []byte
}

// Type implements Block.
func (*SceneTreeBlock) Type() uint8 { return TypeSceneTree }

func decodeSceneTree(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	b := &SceneTreeBlock{}
	var err error
	if b.TreeID, err = r.ReadID(1); err != nil {
		return nil, err
	}
	if b.NodeID, err = r.ReadID(2); err != nil {
		return nil, err
	}
	if b.IsUpdate, err = r.ReadBool(3); err != nil {
		return nil, err
	}
	sub, err := r.Subblock(4)
	if err != nil {
		return nil, err
	}
	if b.ParentID, err = sub.ReadID(1); err != nil {
		return nil, err
	}
	b.ParentExtra = sub.Rest()
	return b, nil
}

func (b *SceneTreeBlock) encode(w *tagged.Writer, _ *encoder) {
	w.WriteID(1, b.TreeID)
	w.WriteID(2, b.NodeID)
	w.WriteBool(3, b.IsUpdate)
	w.WriteSubblock(4, func(sub *tagged.Writer) {
		sub.WriteID(1, b.ParentID)
		sub.PutBytes(b.ParentExtra)
	})
}

// TreeNodeBlock carries the properties of a group: its label, visibility and,
// for groups anchored to text, the anchor.
type TreeNodeBlock struct {
	Info
	NodeID  crdt.ID
	Label   crdt.LWW[string]
	Visible crdt.LWW[bool]

	AnchorID        *crdt.LWW[crdt.ID]
	AnchorType      *crdt.LWW[uint8]
	AnchorThreshold *crdt.LWW[float32]
	AnchorOriginX   *crdt.LWW[float32]

	// Leftovers holds unread bytes inside the value subblocks.
	Leftovers tagged.Leftovers
}

// Type implements Block.
func (*TreeNodeBlock) Type() uint8 { return TypeTreeNode }

// HasAnchor reports whether all anchor fields are set.
func (b *TreeNodeBlock) HasAnchor() bool {
	return b.AnchorID != nil && b.AnchorType != nil && b.AnchorThreshold != nil && b.AnchorOriginX != nil
}

func decodeTreeNode(r *tagged.Reader, _ tagged.BlockHeader) (Block, error) {
	b := &TreeNodeBlock{}
	r.Keep(&b.Leftovers)
	var err error
	if b.NodeID, err = r.ReadID(1); err != nil {
		return nil, err
	}
	if b.Label, err = r.ReadLwwString(2); err != nil {
		return nil, err
	}
	if b.Visible, err = r.ReadLwwBool(3); err != nil {
		return nil, err
	}
	if !r.HasSubblock(7) {
		return b, nil
	}

	id, err := r.ReadLwwID(7)
	if err != nil {
		return nil, err
	}
	typ, err := r.ReadLwwUint8(8)
	if err != nil {
		return nil, err
	}
	threshold, err := r.ReadLwwFloat(9)
	if err != nil {
		return nil, err
	}
	originX, err := r.ReadLwwFloat(10)
	if err != nil {
		return nil, err
	}
	b.AnchorID, b.AnchorType, b.AnchorThreshold, b.AnchorOriginX = &id, &typ, &threshold, &originX
	return b, nil
}

func (b *TreeNodeBlock) encode(w *tagged.Writer, e *encoder) {
	w.Restore(b.Leftovers)
	w.WriteID(1, b.NodeID)
	w.WriteLwwString(2, b.Label)
	w.WriteLwwBool(3, b.Visible)
	if e.include(b.HasAnchor(), versionInlineFormat) {
		w.WriteLwwID(7, *b.AnchorID)
		w.WriteLwwUint8(8, *b.AnchorType)
		w.WriteLwwFloat(9, *b.AnchorThreshold)
		w.WriteLwwFloat(10, *b.AnchorOriginX)
	}
}
