// Package scenetree assembles decoded blocks into a tree of groups and items.
package scenetree

import (
	"math"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/scene"
)

// OrphansID is the node id of the synthetic group holding orphaned nodes. It
// is never written to a file.
var OrphansID = crdt.ID{Author: 0, Counter: math.MaxUint64}

// Tree is a page's scene.
type Tree struct {
	// Root is the group (0, 1).
	Root *scene.Group
	// Orphans holds nodes whose parent never resolved. Its groups are
	// flagged Orphaned.
	Orphans *scene.Group
	// RootText is the page text, nil when the page has none.
	RootText *scene.Text
	// Meta keeps the blocks that are not part of the tree, in file order.
	Meta []blocks.Block

	groups map[crdt.ID]*scene.Group
	// declared maps group ids to the parent named when they were declared.
	declared map[crdt.ID]crdt.ID
	// orphanParents maps orphaned item ids to the parent they referenced.
	orphanParents map[crdt.ID]crdt.ID
}

// New returns a tree holding only the root group.
func New() *Tree {
	t := &Tree{
		Root:          scene.NewGroup(crdt.RootID),
		Orphans:       scene.NewGroup(OrphansID),
		groups:        make(map[crdt.ID]*scene.Group),
		declared:      make(map[crdt.ID]crdt.ID),
		orphanParents: make(map[crdt.ID]crdt.ID),
	}
	t.Orphans.Label = crdt.NewLWW(crdt.EndMarker, "Orphans")
	t.groups[crdt.RootID] = t.Root
	return t
}

// Lookup returns the group with the given node id.
func (t *Tree) Lookup(id crdt.ID) (*scene.Group, bool) {
	if id == OrphansID {
		return t.Orphans, true
	}
	g, ok := t.groups[id]
	return g, ok
}

// Len returns the number of groups, the root included.
func (t *Tree) Len() int {
	return len(t.groups)
}

// WalkFunc is called for each live item. id is the node id for groups and
// the item id for everything else. depth is 0 for the root and orphans groups.
// Returning false skips the children of a group.
type WalkFunc func(depth int, id crdt.ID, item scene.Item) bool

// Walk visits the live items of the tree depth-first: the root group and its
// descendants, then the orphans group and its descendants. Children are
// visited in sequence order.
func (t *Tree) Walk(fn WalkFunc) {
	walkGroup(t.Root, 0, fn)
	walkGroup(t.Orphans, 0, fn)
}

func walkGroup(g *scene.Group, depth int, fn WalkFunc) {
	if !fn(depth, g.NodeID, g) {
		return
	}
	for childID, child := range g.Children.Live() {
		switch c := child.(type) {
		case nil:
		case *scene.Group:
			walkGroup(c, depth+1, fn)
		default:
			fn(depth+1, childID, c)
		}
	}
}

// Count returns the number of live items of each kind below the root and
// orphans groups.
func (t *Tree) Count() map[string]int {
	counts := make(map[string]int)
	t.Walk(func(depth int, _ crdt.ID, item scene.Item) bool {
		if depth > 0 {
			counts[scene.Kind(item)]++
		}
		return true
	})
	return counts
}
