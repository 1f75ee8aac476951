package grid

import (
	"errors"
)

var (
	ErrOccupied    = errors.New("grid: cell already occupied")
	ErrInvalidSize = errors.New("grid: block size must be positive")
)

// Index composes an Occupancy and a Graph, keeping the graph's node set equal
// to the set of block anchors.
type Index[T any] struct {
	cells     *Occupancy[T]
	graph     *Graph
	predicate Predicate[T]
}

// NewIndex creates an empty index. A nil predicate behaves like Always.
func NewIndex[T any](predicate Predicate[T]) *Index[T] {
	if predicate == nil {
		predicate = Always[T]()
	}
	return &Index[T]{
		cells:     NewOccupancy[T](),
		graph:     NewGraph(),
		predicate: predicate,
	}
}

// Insert places a block, returning false without side effects if any of its
// cells is already occupied or the size is not positive.
func (idx *Index[T]) Insert(x, y, size int, data T) bool {
	return idx.InsertE(x, y, size, data) == nil
}

// InsertE is Insert reporting why the block was rejected.
func (idx *Index[T]) InsertE(x, y, size int, data T) error {
	if size <= 0 {
		return ErrInvalidSize
	}
	if !idx.cells.Free(x, y, size) {
		return ErrOccupied
	}

	block := Block[T]{X: x, Y: y, Size: size, Data: data}
	idx.cells.Occupy(block)
	idx.graph.AddNode(block.Key())

	adjacent := idx.adjacent(block)
	if len(adjacent) == 0 {
		return nil
	}
	self := idx.linked(block)
	for _, other := range adjacent {
		if idx.predicate.Group(self, idx.linked(other)) {
			idx.graph.AddEdge(block.Key(), other.Key())
		}
	}
	return nil
}

// Upsert replaces the block covering (x, y), if any, and inserts the new one.
// Replacing forces edges to be recomputed. The previous block is returned. If
// the new block does not fit, the previous one is put back.
func (idx *Index[T]) Upsert(x, y, size int, data T) (Block[T], bool, error) {
	prev, replaced := idx.Remove(x, y)
	if err := idx.InsertE(x, y, size, data); err != nil {
		if replaced {
			idx.InsertE(prev.X, prev.Y, prev.Size, prev.Data)
		}
		return prev, replaced, err
	}
	return prev, replaced, nil
}

// Remove deletes the block covering (x, y) along with its node and edges.
func (idx *Index[T]) Remove(x, y int) (Block[T], bool) {
	block, ok := idx.cells.Select(x, y)
	if !ok {
		return block, false
	}
	idx.cells.Vacate(block)
	idx.graph.RemoveNode(block.Key())
	return block, true
}

// RemoveAll clears both structures.
func (idx *Index[T]) RemoveAll() {
	idx.cells.Clear()
	idx.graph.Clear()
}

func (idx *Index[T]) Select(x, y int) (Block[T], bool) {
	return idx.cells.Select(x, y)
}

func (idx *Index[T]) SelectRect(x, y, w, h int) []Block[T] {
	return idx.cells.SelectRect(x, y, w, h)
}

func (idx *Index[T]) SelectAll() []Block[T] {
	return idx.cells.SelectAll()
}

// Neighbors returns the blocks connected by an edge to the block covering
// (x, y). Spatially adjacent blocks the predicate rejected are not included.
func (idx *Index[T]) Neighbors(x, y int) []Block[T] {
	block, ok := idx.cells.Select(x, y)
	if !ok {
		return nil
	}
	return idx.links(block.Key())
}

// Len returns the number of blocks in the index.
func (idx *Index[T]) Len() int {
	return idx.cells.Len()
}

// Edges returns the number of edges of the adjacency graph.
func (idx *Index[T]) Edges() int {
	return idx.graph.EdgeCount()
}

// Groups partitions the graph into connected components with a breadth-first
// traversal, folding the bounding rectangle while visiting. It runs in
// O(nodes + edges); callers polling often should cache the result until the
// index changes.
func (idx *Index[T]) Groups() []Group[T] {
	var groups []Group[T]
	visited := make(map[int64]struct{}, idx.graph.NodeCount())
	queue := make([]int64, 0, 16)

	for _, node := range idx.graph.Nodes() {
		if _, ok := visited[node]; ok {
			continue
		}
		first, ok := idx.cells.anchor(node)
		if !ok {
			// a node without block would break the invariant, drop it
			idx.graph.RemoveNode(node)
			continue
		}

		minX, minY := first.X, first.Y
		maxX, maxY := first.X+first.Size, first.Y+first.Size
		var blocks []Block[T]

		visited[node] = struct{}{}
		queue = append(queue[:0], node)
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			b, ok := idx.cells.anchor(current)
			if !ok {
				continue
			}
			blocks = append(blocks, *b)
			minX = min(minX, b.X)
			minY = min(minY, b.Y)
			maxX = max(maxX, b.X+b.Size)
			maxY = max(maxY, b.Y+b.Size)

			for _, other := range idx.graph.Adjacent(current) {
				if _, ok := visited[other]; ok {
					continue
				}
				visited[other] = struct{}{}
				queue = append(queue, other)
			}
		}

		groups = append(groups, Group[T]{
			X:      minX,
			Y:      minY,
			W:      maxX - minX,
			H:      maxY - minY,
			Blocks: blocks,
		})
	}
	return groups
}

// adjacent walks the four perimeter strips just outside the block and returns
// each distinct neighboring block once, in discovery order.
func (idx *Index[T]) adjacent(b Block[T]) []Block[T] {
	var out []Block[T]
	seen := make(map[int64]struct{})
	visit := func(x, y int) {
		other, ok := idx.cells.Select(x, y)
		if !ok {
			return
		}
		k := other.Key()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, other)
	}
	for i := 0; i < b.Size; i++ {
		visit(b.X-1, b.Y+i)
		visit(b.X+b.Size, b.Y+i)
		visit(b.X+i, b.Y-1)
		visit(b.X+i, b.Y+b.Size)
	}
	return out
}

func (idx *Index[T]) linked(b Block[T]) Linked[T] {
	return Linked[T]{Block: b, Links: idx.links(b.Key())}
}

func (idx *Index[T]) links(key int64) []Block[T] {
	adj := idx.graph.Adjacent(key)
	if len(adj) == 0 {
		return nil
	}
	out := make([]Block[T], 0, len(adj))
	for _, k := range adj {
		if b, ok := idx.cells.anchor(k); ok {
			out = append(out, *b)
		}
	}
	return out
}
