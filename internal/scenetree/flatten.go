package scenetree

import (
	"fmt"
	"slices"
	"strings"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/scene"
)

// Flatten returns blocks that build back into a tree equivalent to t: the
// metadata blocks, a declaration and a properties block per group, the items
// of every group in sequence order and finally the root text.
func Flatten(t *Tree) []blocks.Block {
	out := slices.Clone(t.Meta)
	groups := t.groupsByID()

	for _, g := range groups {
		if g == t.Root {
			continue
		}
		parent, ok := t.declared[g.NodeID]
		if !ok {
			parent = crdt.RootID
		}
		out = append(out, &blocks.SceneTreeBlock{
			TreeID:   g.NodeID,
			NodeID:   crdt.EndMarker,
			IsUpdate: true,
			ParentID: parent,
		})
	}
	for _, g := range groups {
		out = append(out, nodeBlock(g))
	}
	for _, g := range groups {
		out = t.appendItems(out, g)
	}
	out = t.appendItems(out, t.Orphans)

	if t.RootText != nil {
		out = append(out, &blocks.RootTextBlock{
			BlockID: crdt.EndMarker,
			Value:   blocks.TextBodyFromScene(t.RootText),
		})
	}
	return out
}

func nodeBlock(g *scene.Group) *blocks.TreeNodeBlock {
	return &blocks.TreeNodeBlock{
		NodeID:          g.NodeID,
		Label:           g.Label,
		Visible:         g.Visible,
		AnchorID:        g.AnchorID,
		AnchorType:      g.AnchorType,
		AnchorThreshold: g.AnchorThreshold,
		AnchorOriginX:   g.AnchorOriginX,
	}
}

func (t *Tree) appendItems(out []blocks.Block, g *scene.Group) []blocks.Block {
	for _, it := range g.Children.Items() {
		parent := g.NodeID
		if g == t.Orphans {
			p, ok := t.orphanParents[it.ID]
			if !ok {
				// Never placed; rebuilding orphans it again.
				continue
			}
			parent = p
		}
		h := blocks.ItemHeader{
			ParentID:      parent,
			ItemID:        it.ID,
			LeftID:        it.LeftID,
			RightID:       it.RightID,
			DeletedLength: it.DeletedLength,
		}
		switch v := it.Value.(type) {
		case nil:
			out = append(out, &blocks.SceneTombstoneItemBlock{ItemHeader: h})
		case *scene.Group:
			id := v.NodeID
			out = append(out, &blocks.SceneGroupItemBlock{ItemHeader: h, Value: &id})
		case *scene.Line:
			out = append(out, &blocks.SceneLineItemBlock{ItemHeader: h, Value: v})
		case *scene.GlyphRange:
			out = append(out, &blocks.SceneGlyphItemBlock{ItemHeader: h, Value: v})
		case *scene.Text:
			out = append(out, &blocks.SceneTextItemBlock{ItemHeader: h, Value: blocks.TextBodyFromScene(v)})
		}
	}
	return out
}

// String renders the tree one item per line, indented by depth. Deleted items
// are included and marked.
func (t *Tree) String() string {
	var sb strings.Builder
	sb.WriteString("root\n")
	writeChildren(&sb, t.Root, 1)
	if t.Orphans.Children.Len() > 0 {
		sb.WriteString("orphans\n")
		writeChildren(&sb, t.Orphans, 1)
	}
	return sb.String()
}

func writeChildren(sb *strings.Builder, g *scene.Group, depth int) {
	for id, it := range g.Children.All() {
		sb.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(sb, "%s %s%s", scene.Kind(it.Value), id, describe(it.Value))
		if it.Deleted() {
			sb.WriteString(" [deleted]")
		}
		sb.WriteByte('\n')
		if child, ok := it.Value.(*scene.Group); ok {
			writeChildren(sb, child, depth+1)
		}
	}
}

func describe(item scene.Item) string {
	switch v := item.(type) {
	case *scene.Group:
		s := fmt.Sprintf(" node %s %q", v.NodeID, v.Label.Value)
		if !v.Visible.Value {
			s += " hidden"
		}
		if v.Orphaned {
			s += " orphaned"
		}
		return s
	case *scene.Line:
		return fmt.Sprintf(" %s %s points=%d", v.Tool, v.Color, len(v.Points))
	case *scene.GlyphRange:
		return fmt.Sprintf(" %s %q", v.Color, v.Text)
	case *scene.Text:
		return fmt.Sprintf(" items=%d", v.Items.Len())
	}
	return ""
}
