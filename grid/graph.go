package grid

import (
	"slices"
)

// Graph is an undirected graph over packed anchor keys, stored as adjacency
// sets.
type Graph struct {
	adj   map[int64]map[int64]struct{}
	edges int
}

func NewGraph() *Graph {
	return &Graph{
		adj: make(map[int64]map[int64]struct{}),
	}
}

func (g *Graph) AddNode(k int64) {
	if _, ok := g.adj[k]; !ok {
		g.adj[k] = make(map[int64]struct{})
	}
}

func (g *Graph) HasNode(k int64) bool {
	_, ok := g.adj[k]
	return ok
}

// RemoveNode drops the node and every incident edge. Returns false if the node
// was unknown.
func (g *Graph) RemoveNode(k int64) bool {
	links, ok := g.adj[k]
	if !ok {
		return false
	}
	for other := range links {
		delete(g.adj[other], k)
		g.edges--
	}
	delete(g.adj, k)
	return true
}

// AddEdge connects two existing, distinct nodes. Returns true if the edge is
// new.
func (g *Graph) AddEdge(a, b int64) bool {
	if a == b {
		return false
	}
	la, ok := g.adj[a]
	if !ok {
		return false
	}
	lb, ok := g.adj[b]
	if !ok {
		return false
	}
	if _, ok := la[b]; ok {
		return false
	}
	la[b] = struct{}{}
	lb[a] = struct{}{}
	g.edges++
	return true
}

func (g *Graph) HasEdge(a, b int64) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Adjacent returns the neighbors of a node in ascending key order.
func (g *Graph) Adjacent(k int64) []int64 {
	links := g.adj[k]
	if len(links) == 0 {
		return nil
	}
	out := make([]int64, 0, len(links))
	for other := range links {
		out = append(out, other)
	}
	slices.Sort(out)
	return out
}

// Nodes returns every node in ascending key order.
func (g *Graph) Nodes() []int64 {
	out := make([]int64, 0, len(g.adj))
	for k := range g.adj {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (g *Graph) NodeCount() int {
	return len(g.adj)
}

func (g *Graph) EdgeCount() int {
	return g.edges
}

func (g *Graph) Clear() {
	clear(g.adj)
	g.edges = 0
}
