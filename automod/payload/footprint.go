package payload

import (
	"slices"

	"github.com/canvasmod/canvasmod/grid"
)

// Footprint lists the anchors of every block making up the group plus the
// positions of the processors linked to its displays, which is what an
// enforcement action has to clear to remove the artifact.
func Footprint(g grid.Group[Image]) []Point {
	seen := make(map[Point]struct{})
	var out []Point
	add := func(p Point) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, b := range g.Blocks {
		add(Point{X: b.X, Y: b.Y})
		if d, ok := b.Data.(*Display); ok {
			for pt := range d.Processors {
				add(pt)
			}
		}
	}
	slices.SortFunc(out, comparePoints)
	return out
}

// Images returns the payloads of the group's blocks.
func Images(g grid.Group[Image]) []Image {
	out := make([]Image, len(g.Blocks))
	for i, b := range g.Blocks {
		out[i] = b.Data
	}
	return out
}
