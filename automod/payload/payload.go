// Package payload holds the decoded contents of the blocks tracked by
// canvasmod: pixel canvases, logic displays and the processors drawing on
// them.
package payload

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
)

// Kind identifies the class of a block on the feed.
type Kind string

const (
	KindCanvas    Kind = "canvas"
	KindDisplay   Kind = "display"
	KindProcessor Kind = "processor"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCanvas, KindDisplay, KindProcessor:
		return true
	}
	return false
}

// Point is a grid cell.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

func comparePoints(a, b Point) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	return cmp.Compare(a.Y, b.Y)
}

// Author is the player who placed or last configured a block.
type Author struct {
	UUID    string     `json:"uuid"`
	Address netip.Addr `json:"address"`
}

func (a Author) String() string {
	return fmt.Sprintf("%s@%s", a.UUID, a.Address)
}

// Image is implemented by the payloads that can be rendered: Canvas and
// Display. Payload values are treated as immutable once inserted in a tracker.
type Image interface {
	// Resolution is the pixel width (and height) of the block's own raster.
	Resolution() int
	// Authors returns one authorship record per contributing element, nil
	// for records without a known author.
	Authors() []*Author
}

// Canvas is a pixel canvas. Pixels are RGB888 values in row-major order; a
// missing tail is black.
type Canvas struct {
	Res    int      `json:"resolution"`
	Pixels []uint32 `json:"pixels"`
	Author *Author  `json:"author,omitempty"`
}

func (c *Canvas) Resolution() int {
	return c.Res
}

func (c *Canvas) Authors() []*Author {
	return []*Author{c.Author}
}

// Pixel returns the RGB888 value at the given row-major index.
func (c *Canvas) Pixel(i int) uint32 {
	if i < 0 || i >= len(c.Pixels) {
		return 0
	}
	return c.Pixels[i]
}

// Display is a logic display together with the processors drawing on it,
// keyed by processor position. Displays are replaced, never mutated, when a
// linked processor changes.
type Display struct {
	Res        int                  `json:"resolution"`
	Processors map[Point]*Processor `json:"-"`
}

func (d *Display) Resolution() int {
	return d.Res
}

func (d *Display) Authors() []*Author {
	procs := d.SortedProcessors()
	out := make([]*Author, len(procs))
	for i, p := range procs {
		out[i] = p.Processor.Author
	}
	return out
}

// PositionedProcessor is a processor together with its position.
type PositionedProcessor struct {
	Point     Point
	Processor *Processor
}

// SortedProcessors returns the linked processors ordered by position, which is
// also the order in which their instructions are drawn.
func (d *Display) SortedProcessors() []PositionedProcessor {
	out := make([]PositionedProcessor, 0, len(d.Processors))
	for pt, p := range d.Processors {
		out = append(out, PositionedProcessor{Point: pt, Processor: p})
	}
	slices.SortFunc(out, func(a, b PositionedProcessor) int {
		return comparePoints(a.Point, b.Point)
	})
	return out
}

// With returns a copy of the display with the processor linked at pt.
func (d *Display) With(pt Point, p *Processor) *Display {
	procs := make(map[Point]*Processor, len(d.Processors)+1)
	for k, v := range d.Processors {
		procs[k] = v
	}
	procs[pt] = p
	return &Display{Res: d.Res, Processors: procs}
}

// Without returns a copy of the display with the processor at pt unlinked.
func (d *Display) Without(pt Point) *Display {
	procs := make(map[Point]*Processor, len(d.Processors))
	for k, v := range d.Processors {
		if k != pt {
			procs[k] = v
		}
	}
	return &Display{Res: d.Res, Processors: procs}
}

// Processor is a logic processor that issues draw instructions to the displays
// it is linked to.
type Processor struct {
	Instructions []Instruction `json:"instructions"`
	Links        []Point       `json:"links"`
	Author       *Author       `json:"author,omitempty"`
}

// LinksInto reports whether one of the processor's links lands inside the
// square anchored at (x, y).
func (p *Processor) LinksInto(x, y, size int) bool {
	for _, l := range p.Links {
		if l.X >= x && l.X < x+size && l.Y >= y && l.Y < y+size {
			return true
		}
	}
	return false
}
