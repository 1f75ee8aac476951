package grid

import (
	"fmt"
)

// Block is a Size×Size square anchored at its lower-left cell (X, Y).
type Block[T any] struct {
	X    int
	Y    int
	Size int
	Data T
}

// Key returns the packed anchor of the block, which is also its graph node.
func (b Block[T]) Key() int64 {
	return Pack(b.X, b.Y)
}

func (b Block[T]) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Size && y >= b.Y && y < b.Y+b.Size
}

// Overlaps reports whether the block shares at least one cell with the
// rectangle.
func (b Block[T]) Overlaps(x, y, w, h int) bool {
	return b.X < x+w && x < b.X+b.Size && b.Y < y+h && y < b.Y+b.Size
}

func (b Block[T]) String() string {
	return fmt.Sprintf("block(%d,%d size=%d)", b.X, b.Y, b.Size)
}

// Group is a connected component of the adjacency graph, materialized with the
// smallest rectangle covering all of its blocks.
type Group[T any] struct {
	X      int
	Y      int
	W      int
	H      int
	Blocks []Block[T]
}

// Key returns the smallest anchor key among the group's blocks. Groups have no
// identity across extractions; the key is only stable while the member with
// the smallest anchor stays in place.
func (g Group[T]) Key() int64 {
	var key int64
	for i, b := range g.Blocks {
		if k := b.Key(); i == 0 || k < key {
			key = k
		}
	}
	return key
}

func (g Group[T]) Len() int {
	return len(g.Blocks)
}

// Contains reports whether a block of the group covers the cell.
func (g Group[T]) Contains(x, y int) bool {
	if x < g.X || x >= g.X+g.W || y < g.Y || y >= g.Y+g.H {
		return false
	}
	for _, b := range g.Blocks {
		if b.Contains(x, y) {
			return true
		}
	}
	return false
}

// Clone copies the block slice so that the result can cross goroutines while
// the owner keeps mutating its index. Block data is shared and must be treated
// as immutable.
func (g Group[T]) Clone() Group[T] {
	blocks := make([]Block[T], len(g.Blocks))
	copy(blocks, g.Blocks)
	g.Blocks = blocks
	return g
}

func (g Group[T]) String() string {
	return fmt.Sprintf("group(%d,%d %dx%d blocks=%d)", g.X, g.Y, g.W, g.H, len(g.Blocks))
}

// MapGroup converts the payload type of a group, typically to widen a concrete
// payload to an interface.
func MapGroup[T, U any](g Group[T], fn func(T) U) Group[U] {
	out := Group[U]{
		X:      g.X,
		Y:      g.Y,
		W:      g.W,
		H:      g.H,
		Blocks: make([]Block[U], len(g.Blocks)),
	}
	for i, b := range g.Blocks {
		out.Blocks[i] = Block[U]{X: b.X, Y: b.Y, Size: b.Size, Data: fn(b.Data)}
	}
	return out
}
