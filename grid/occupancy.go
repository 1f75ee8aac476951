package grid

import (
	"slices"
)

// Occupancy maps every covered cell to the block covering it.
type Occupancy[T any] struct {
	cells  map[int64]*Block[T]
	blocks map[int64]*Block[T]
}

func NewOccupancy[T any]() *Occupancy[T] {
	return &Occupancy[T]{
		cells:  make(map[int64]*Block[T]),
		blocks: make(map[int64]*Block[T]),
	}
}

// Select returns the block covering the cell, if any.
func (o *Occupancy[T]) Select(x, y int) (Block[T], bool) {
	b, ok := o.cells[Pack(x, y)]
	if !ok {
		var zero Block[T]
		return zero, false
	}
	return *b, true
}

// Free reports whether none of the cells of the square are covered.
func (o *Occupancy[T]) Free(x, y, size int) bool {
	for ix := x; ix < x+size; ix++ {
		for iy := y; iy < y+size; iy++ {
			if _, ok := o.cells[Pack(ix, iy)]; ok {
				return false
			}
		}
	}
	return true
}

// SelectRect returns every block overlapping the rectangle exactly once,
// ordered by anchor key.
func (o *Occupancy[T]) SelectRect(x, y, w, h int) []Block[T] {
	if w <= 0 || h <= 0 {
		return nil
	}

	var out []Block[T]
	if w*h <= len(o.cells) {
		seen := make(map[int64]struct{})
		for ix := x; ix < x+w; ix++ {
			for iy := y; iy < y+h; iy++ {
				b, ok := o.cells[Pack(ix, iy)]
				if !ok {
					continue
				}
				k := b.Key()
				if _, ok := seen[k]; ok {
					continue
				}
				seen[k] = struct{}{}
				out = append(out, *b)
			}
		}
	} else {
		// the rectangle is larger than the populated area, walking blocks is cheaper
		for _, b := range o.blocks {
			if b.Overlaps(x, y, w, h) {
				out = append(out, *b)
			}
		}
	}

	slices.SortFunc(out, compareBlocks[T])
	return out
}

// SelectAll returns every block ordered by anchor key.
func (o *Occupancy[T]) SelectAll() []Block[T] {
	out := make([]Block[T], 0, len(o.blocks))
	for _, b := range o.blocks {
		out = append(out, *b)
	}
	slices.SortFunc(out, compareBlocks[T])
	return out
}

// Occupy registers the block on all of its cells. The caller must have checked
// that the cells are free.
func (o *Occupancy[T]) Occupy(b Block[T]) {
	ptr := &b
	o.blocks[b.Key()] = ptr
	for ix := b.X; ix < b.X+b.Size; ix++ {
		for iy := b.Y; iy < b.Y+b.Size; iy++ {
			o.cells[Pack(ix, iy)] = ptr
		}
	}
}

// Vacate clears every cell of the block anchored at the given block's anchor.
func (o *Occupancy[T]) Vacate(b Block[T]) {
	delete(o.blocks, b.Key())
	for ix := b.X; ix < b.X+b.Size; ix++ {
		for iy := b.Y; iy < b.Y+b.Size; iy++ {
			delete(o.cells, Pack(ix, iy))
		}
	}
}

func (o *Occupancy[T]) anchor(key int64) (*Block[T], bool) {
	b, ok := o.blocks[key]
	return b, ok
}

// Len returns the number of blocks.
func (o *Occupancy[T]) Len() int {
	return len(o.blocks)
}

// Cells returns the number of covered cells.
func (o *Occupancy[T]) Cells() int {
	return len(o.cells)
}

func (o *Occupancy[T]) Clear() {
	clear(o.cells)
	clear(o.blocks)
}

func compareBlocks[T any](a, b Block[T]) int {
	ka, kb := a.Key(), b.Key()
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}
