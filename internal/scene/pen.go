package scene

import "fmt"

// Pen identifies the tool a stroke was drawn with. Values not listed here are
// kept as-is.
type Pen uint32

const (
	PenPaintbrush1       Pen = 0
	PenPencil1           Pen = 1
	PenBallpoint1        Pen = 2
	PenMarker1           Pen = 3
	PenFineliner1        Pen = 4
	PenHighlighter1      Pen = 5
	PenEraser            Pen = 6
	PenMechanicalPencil1 Pen = 7
	PenEraserArea        Pen = 8
	PenPaintbrush2       Pen = 12
	PenMechanicalPencil2 Pen = 13
	PenPencil2           Pen = 14
	PenBallpoint2        Pen = 15
	PenMarker2           Pen = 16
	PenFineliner2        Pen = 17
	PenHighlighter2      Pen = 18
	PenCalligraphy       Pen = 21
	PenShader            Pen = 23
)

var penNames = map[Pen]string{
	PenPaintbrush1:       "paintbrush-1",
	PenPencil1:           "pencil-1",
	PenBallpoint1:        "ballpoint-1",
	PenMarker1:           "marker-1",
	PenFineliner1:        "fineliner-1",
	PenHighlighter1:      "highlighter-1",
	PenEraser:            "eraser",
	PenMechanicalPencil1: "mechanical-pencil-1",
	PenEraserArea:        "eraser-area",
	PenPaintbrush2:       "paintbrush-2",
	PenMechanicalPencil2: "mechanical-pencil-2",
	PenPencil2:           "pencil-2",
	PenBallpoint2:        "ballpoint-2",
	PenMarker2:           "marker-2",
	PenFineliner2:        "fineliner-2",
	PenHighlighter2:      "highlighter-2",
	PenCalligraphy:       "calligraphy",
	PenShader:            "shader",
}

func (p Pen) String() string {
	if name, ok := penNames[p]; ok {
		return name
	}
	return fmt.Sprintf("pen(%d)", uint32(p))
}

// IsHighlighter reports whether strokes of this pen are translucent
// highlights.
func (p Pen) IsHighlighter() bool {
	return p == PenHighlighter1 || p == PenHighlighter2
}

// PenColor is a palette index.
type PenColor uint32

const (
	ColorBlack       PenColor = 0
	ColorGray        PenColor = 1
	ColorWhite       PenColor = 2
	ColorYellow      PenColor = 3
	ColorGreen       PenColor = 4
	ColorPink        PenColor = 5
	ColorBlue        PenColor = 6
	ColorRed         PenColor = 7
	ColorGrayOverlap PenColor = 8
	ColorHighlight   PenColor = 9
	ColorGreen2      PenColor = 10
	ColorCyan        PenColor = 11
	ColorMagenta     PenColor = 12
	ColorYellow2     PenColor = 13
)

var colorNames = map[PenColor]string{
	ColorBlack:       "black",
	ColorGray:        "gray",
	ColorWhite:       "white",
	ColorYellow:      "yellow",
	ColorGreen:       "green",
	ColorPink:        "pink",
	ColorBlue:        "blue",
	ColorRed:         "red",
	ColorGrayOverlap: "gray-overlap",
	ColorHighlight:   "highlight",
	ColorGreen2:      "green-2",
	ColorCyan:        "cyan",
	ColorMagenta:     "magenta",
	ColorYellow2:     "yellow-2",
}

func (c PenColor) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("color(%d)", uint32(c))
}
