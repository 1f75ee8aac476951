// Package grid implements an incrementally maintained index of square blocks
// anchored on an integer grid.
//
// An Index keeps two structures in lock-step: an occupancy map from every
// covered cell to the block covering it, and an undirected adjacency graph
// whose nodes are block anchors. Edges are added when a block is inserted next
// to another block and the index's Predicate approves the pair. Connected
// components of that graph are the "groups" (artifacts) returned by
// Index.Groups.
//
// None of the types in this package are safe for concurrent use. Callers are
// expected to own an Index from a single goroutine and hand out copies.
package grid
