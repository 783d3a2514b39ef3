package scenetree

import (
	"fmt"
	"maps"
	"slices"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/diag"
	"rmlines/internal/scene"
)

// Build assembles decoded blocks into a tree. It never fails: blocks that
// reference ids which never appear are placed under the orphans group, and
// each recovery is reported as a diagnostic whose BlockIndex is the block's
// position in bs.
func Build(bs []blocks.Block) (*Tree, []diag.Diagnostic) {
	b := &builder{
		tree:    New(),
		pending: make(map[crdt.ID][]pendingBlock),
		placed:  make(map[crdt.ID]placement),
	}
	for i, blk := range bs {
		b.apply(i, blk)
	}
	b.finish()
	return b.tree, b.diags
}

// pendingBlock is a block waiting for a group to be declared.
type pendingBlock struct {
	index int
	block blocks.Block
}

// placement records which item of which group holds a child group.
type placement struct {
	parent crdt.ID
	item   crdt.ID
}

type builder struct {
	tree    *Tree
	pending map[crdt.ID][]pendingBlock
	placed  map[crdt.ID]placement
	diags   []diag.Diagnostic

	// orphaning is set once input is exhausted; blocks whose parent is
	// still unknown then go to the orphans group.
	orphaning bool
}

func (b *builder) report(index int, blk blocks.Block, err error) {
	var typ uint8
	if blk != nil {
		typ = blk.Type()
	}
	b.diags = append(b.diags, diag.FromError(index, typ, diag.NoOffset, err))
}

func (b *builder) wait(id crdt.ID, index int, blk blocks.Block) {
	b.pending[id] = append(b.pending[id], pendingBlock{index: index, block: blk})
}

func (b *builder) apply(index int, blk blocks.Block) {
	switch blk := blk.(type) {
	case *blocks.SceneTreeBlock:
		b.declare(index, blk)
	case *blocks.TreeNodeBlock:
		g, ok := b.tree.groups[blk.NodeID]
		if !ok {
			b.wait(blk.NodeID, index, blk)
			return
		}
		applyNode(g, blk)
	case *blocks.SceneGroupItemBlock:
		b.placeGroup(index, blk)
	case *blocks.SceneLineItemBlock:
		var item scene.Item
		if blk.Value != nil {
			item = blk.Value
		}
		b.insert(index, blk, item)
	case *blocks.SceneGlyphItemBlock:
		var item scene.Item
		if blk.Value != nil {
			item = blk.Value
		}
		b.insert(index, blk, item)
	case *blocks.SceneTextItemBlock:
		var item scene.Item
		if blk.Value != nil {
			item = blk.Value.Scene()
		}
		b.insert(index, blk, item)
	case *blocks.SceneTombstoneItemBlock:
		b.tombstone(index, blk)
	case *blocks.RootTextBlock:
		if blk.Value != nil {
			b.tree.RootText = blk.Value.Scene()
		}
	default:
		b.tree.Meta = append(b.tree.Meta, blk)
	}
}

func (b *builder) declare(index int, blk *blocks.SceneTreeBlock) {
	if blk.TreeID == crdt.RootID || blk.TreeID == OrphansID {
		b.report(index, blk, fmt.Errorf("declaration of reserved group %s: %w", blk.TreeID, diag.ErrInvalidValue))
		return
	}
	if _, ok := b.tree.declared[blk.TreeID]; !ok {
		b.tree.declared[blk.TreeID] = blk.ParentID
	}
	b.ensureGroup(blk.TreeID)
}

// ensureGroup returns the group with the given id, creating it and replaying
// the blocks that waited for it when it is new.
func (b *builder) ensureGroup(id crdt.ID) *scene.Group {
	if g, ok := b.tree.groups[id]; ok {
		return g
	}
	g := scene.NewGroup(id)
	b.tree.groups[id] = g

	queue := b.pending[id]
	delete(b.pending, id)
	for _, p := range queue {
		b.apply(p.index, p.block)
	}
	return g
}

func applyNode(g *scene.Group, blk *blocks.TreeNodeBlock) {
	g.Label = blk.Label
	g.Visible = blk.Visible
	if blk.HasAnchor() {
		g.AnchorID = blk.AnchorID
		g.AnchorType = blk.AnchorType
		g.AnchorThreshold = blk.AnchorThreshold
		g.AnchorOriginX = blk.AnchorOriginX
	}
}

// parentOf finds the group an item block belongs to. When the group is not
// known the block is queued, or once input is exhausted, sent to the orphans
// group.
func (b *builder) parentOf(index int, blk blocks.ItemBlock) (*scene.Group, bool) {
	h := blk.Header()
	if g, ok := b.tree.groups[h.ParentID]; ok {
		return g, true
	}
	if !b.orphaning {
		b.wait(h.ParentID, index, blk)
		return nil, false
	}
	b.tree.orphanParents[h.ItemID] = h.ParentID
	b.report(index, blk, fmt.Errorf("item %s references unknown group %s: %w",
		h.ItemID, h.ParentID, diag.ErrOrphanedReference))
	return b.tree.Orphans, true
}

func sequenceItem(h *blocks.ItemHeader, value scene.Item) crdt.SequenceItem[scene.Item] {
	return crdt.SequenceItem[scene.Item]{
		ID:            h.ItemID,
		LeftID:        h.LeftID,
		RightID:       h.RightID,
		DeletedLength: h.DeletedLength,
		Value:         value,
	}
}

// add inserts item into g. A deletion already recorded for the id is kept:
// tombstones stick even when the item's own block arrives later.
func (b *builder) add(g *scene.Group, item crdt.SequenceItem[scene.Item]) {
	if old, ok := g.Children.Item(item.ID); ok {
		if old.Deleted() && !item.Deleted() {
			item.DeletedLength = old.DeletedLength
		}
		if child, ok := old.Value.(*scene.Group); ok && item.Value != scene.Item(child) {
			delete(b.placed, child.NodeID)
		}
	}
	g.Children.Insert(item)
}

func (b *builder) insert(index int, blk blocks.ItemBlock, value scene.Item) {
	parent, ok := b.parentOf(index, blk)
	if !ok {
		return
	}
	// An earlier tombstone for this id keeps the item deleted.
	b.add(parent, sequenceItem(blk.Header(), value))
}

func (b *builder) placeGroup(index int, blk *blocks.SceneGroupItemBlock) {
	h := blk.Header()
	if blk.Value == nil {
		b.insert(index, blk, nil)
		return
	}
	child := *blk.Value
	if child == crdt.RootID || child == OrphansID {
		b.report(index, blk, fmt.Errorf("item %s places reserved group %s: %w", h.ItemID, child, diag.ErrInvalidValue))
		return
	}
	parent, ok := b.parentOf(index, blk)
	if !ok {
		return
	}
	if p, ok := b.placed[child]; ok && (p.item != h.ItemID || p.parent != parent.NodeID) {
		b.report(index, blk, fmt.Errorf("group %s already placed by item %s in %s: %w",
			child, p.item, p.parent, diag.ErrInvalidValue))
		return
	}
	g := b.ensureGroup(child)
	// As in insert, a tombstone seen first keeps the placement deleted.
	b.add(parent, sequenceItem(h, g))
	b.placed[child] = placement{parent: parent.NodeID, item: h.ItemID}
}

func (b *builder) tombstone(index int, blk *blocks.SceneTombstoneItemBlock) {
	parent, ok := b.parentOf(index, blk)
	if !ok {
		return
	}
	h := blk.Header()
	if parent.Children.MarkDeleted(h.ItemID, h.DeletedLength) {
		return
	}
	parent.Children.Insert(sequenceItem(h, nil))
}

// finish resolves what is still pending once every block has been applied.
func (b *builder) finish() {
	// Groups that only received properties are created so their items can
	// attach; they are orphaned below for lack of a placement.
	for _, id := range sortedIDs(b.pending) {
		queue, ok := b.pending[id]
		if !ok {
			continue
		}
		if slices.ContainsFunc(queue, func(p pendingBlock) bool {
			_, node := p.block.(*blocks.TreeNodeBlock)
			return node
		}) {
			b.ensureGroup(id)
		}
	}

	var rest []pendingBlock
	for _, queue := range b.pending {
		rest = append(rest, queue...)
	}
	clear(b.pending)
	slices.SortFunc(rest, func(x, y pendingBlock) int { return x.index - y.index })
	b.orphaning = true
	for _, p := range rest {
		b.apply(p.index, p.block)
	}

	b.orphanUnplaced()
	b.detachUnreachable()

	for id, g := range b.tree.groups {
		if p, ok := b.placed[id]; ok && p.parent == OrphansID {
			g.Orphaned = true
		}
	}

	b.reportCycles()
}

// orphanUnplaced moves declared groups that no item placed into the orphans
// group.
func (b *builder) orphanUnplaced() {
	for _, id := range sortedIDs(b.tree.groups) {
		if id == crdt.RootID {
			continue
		}
		if _, ok := b.placed[id]; ok {
			continue
		}
		g := b.tree.groups[id]
		b.tree.Orphans.Children.Insert(crdt.SequenceItem[scene.Item]{ID: id, Value: g})
		b.placed[id] = placement{parent: OrphansID, item: id}

		reason := fmt.Errorf("group %s is never placed: %w", id, diag.ErrOrphanedReference)
		if parent, ok := b.tree.declared[id]; ok {
			reason = fmt.Errorf("group %s is never placed in %s: %w", id, parent, diag.ErrOrphanedReference)
		}
		b.report(diag.NoBlock, nil, reason)
	}
}

// detachUnreachable breaks loops of groups placed inside each other by moving
// the lowest id of each loop to the orphans group.
func (b *builder) detachUnreachable() {
	reached := make(map[crdt.ID]bool, len(b.tree.groups))
	mark(b.tree.Root, reached)
	mark(b.tree.Orphans, reached)

	for _, id := range sortedIDs(b.tree.groups) {
		if reached[id] {
			continue
		}
		p := b.placed[id]
		parent := b.tree.groups[p.parent]
		item, _ := parent.Children.Item(p.item)
		parent.Children.Remove(p.item)

		b.tree.Orphans.Children.Insert(item)
		b.tree.orphanParents[p.item] = p.parent
		b.placed[id] = placement{parent: OrphansID, item: p.item}
		b.report(diag.NoBlock, nil, fmt.Errorf("group %s is its own ancestor, detached from %s: %w",
			id, p.parent, diag.ErrCycleDetected))
		mark(b.tree.groups[id], reached)
	}
}

// mark records g and every group below it, deleted children included.
func mark(g *scene.Group, reached map[crdt.ID]bool) {
	if reached[g.NodeID] {
		return
	}
	reached[g.NodeID] = true
	for _, item := range g.Children.All() {
		if child, ok := item.Value.(*scene.Group); ok {
			mark(child, reached)
		}
	}
}

func (b *builder) reportCycles() {
	groups := append([]*scene.Group{b.tree.Orphans}, b.tree.groupsByID()...)
	for _, g := range groups {
		for _, br := range g.Children.BrokenCycles() {
			b.report(diag.NoBlock, nil, fmt.Errorf("group %s: order of item %s after %s ignored: %w",
				g.NodeID, br.ID, br.Link, diag.ErrCycleDetected))
		}
	}
}

func sortedIDs[V any](m map[crdt.ID]V) []crdt.ID {
	return slices.SortedFunc(maps.Keys(m), crdt.ID.Compare)
}

// groupsByID returns every group except the orphans group, ordered by id.
func (t *Tree) groupsByID() []*scene.Group {
	ids := sortedIDs(t.groups)
	out := make([]*scene.Group, len(ids))
	for i, id := range ids {
		out[i] = t.groups[id]
	}
	return out
}
