package web

import (
	"fmt"
	"math"

	"github.com/hpungsan/poetrybox/internal/scene"
)

// svgScale maps meters to SVG user units (millimetres).
const svgScale = 1000.0

const svgMargin = 20.0

// Shape is one entity drawn as a rectangle in the front view.
type Shape struct {
	ID    string
	Kind  scene.Kind
	Label string
	X, Y  float64
	W, H  float64
}

// SceneView is an orthographic front projection (x right, y up) of a
// composition's world bounds, ready for an SVG element.
type SceneView struct {
	ViewBox string
	Shapes  []Shape
}

// buildView projects entities onto the x/y plane. Boards come first so cards
// are drawn on top of them.
func buildView(entities []scene.Entity) SceneView {
	var boards, cards []Shape
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	for _, e := range entities {
		b := e.Bounds()
		sh := Shape{
			ID:    e.ID,
			Kind:  e.Kind,
			Label: e.Word,
			X:     b.Min[0] * svgScale,
			Y:     -b.Max[1] * svgScale,
			W:     (b.Max[0] - b.Min[0]) * svgScale,
			H:     (b.Max[1] - b.Min[1]) * svgScale,
		}
		minX = math.Min(minX, sh.X)
		minY = math.Min(minY, sh.Y)
		maxX = math.Max(maxX, sh.X+sh.W)
		maxY = math.Max(maxY, sh.Y+sh.H)
		if e.Kind == scene.KindBoard {
			boards = append(boards, sh)
		} else {
			cards = append(cards, sh)
		}
	}

	if len(boards)+len(cards) == 0 {
		return SceneView{ViewBox: "0 0 100 100"}
	}
	return SceneView{
		ViewBox: fmt.Sprintf("%.1f %.1f %.1f %.1f",
			minX-svgMargin, minY-svgMargin,
			maxX-minX+2*svgMargin, maxY-minY+2*svgMargin),
		Shapes: append(boards, cards...),
	}
}
