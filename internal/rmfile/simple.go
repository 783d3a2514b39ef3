package rmfile

import (
	"strings"

	"github.com/google/uuid"

	"rmlines/internal/blocks"
	"rmlines/internal/crdt"
	"rmlines/internal/scene"
)

// Text box geometry used by the device for a new page.
const (
	defaultTextPosX  = -468
	defaultTextPosY  = 234
	defaultTextWidth = 936
)

// SimpleTextDocument returns the blocks of a page holding text as its root
// text and one empty layer. The author is recorded as author 1.
func SimpleTextDocument(text string, authorID uuid.UUID) []blocks.Block {
	layer := crdt.ID{Author: 0, Counter: 11}
	return []blocks.Block{
		&blocks.AuthorIDsBlock{Authors: []blocks.AuthorID{{Author: 1, UUID: authorID}}},
		&blocks.MigrationInfoBlock{MigrationID: crdt.ID{Author: 1, Counter: 1}, IsDevice: true},
		&blocks.PageInfoBlock{
			LoadsCount:     1,
			TextCharsCount: uint32(len([]rune(text)) + 1),
			TextLinesCount: uint32(strings.Count(text, "\n") + 1),
		},
		&blocks.SceneInfoBlock{CurrentLayer: crdt.NewLWW(crdt.EndMarker, crdt.EndMarker)},
		&blocks.RootTextBlock{
			BlockID: crdt.EndMarker,
			Value: &blocks.TextBody{
				Items: []blocks.TextItem{{SequenceItem: crdt.SequenceItem[scene.TextSpan]{
					ID:      crdt.ID{Author: 1, Counter: 16},
					LeftID:  crdt.EndMarker,
					RightID: crdt.EndMarker,
					Value:   scene.TextSpan{Text: text},
				}}},
				Styles: []blocks.TextStyle{{
					CharID: crdt.EndMarker,
					Style:  crdt.NewLWW(crdt.ID{Author: 1, Counter: 15}, scene.StylePlain),
				}},
				PosX:  defaultTextPosX,
				PosY:  defaultTextPosY,
				Width: defaultTextWidth,
			},
		},
		&blocks.TreeNodeBlock{
			NodeID:  crdt.RootID,
			Label:   crdt.NewLWW(crdt.EndMarker, ""),
			Visible: crdt.NewLWW(crdt.EndMarker, true),
		},
		&blocks.SceneTreeBlock{TreeID: layer, NodeID: crdt.EndMarker, IsUpdate: true, ParentID: crdt.RootID},
		&blocks.TreeNodeBlock{
			NodeID:  layer,
			Label:   crdt.NewLWW(crdt.ID{Author: 0, Counter: 12}, "Layer 1"),
			Visible: crdt.NewLWW(crdt.EndMarker, true),
		},
		&blocks.SceneGroupItemBlock{
			ItemHeader: blocks.ItemHeader{
				ParentID: crdt.RootID,
				ItemID:   crdt.ID{Author: 0, Counter: 13},
				LeftID:   crdt.EndMarker,
				RightID:  crdt.EndMarker,
			},
			Value: &layer,
		},
	}
}
