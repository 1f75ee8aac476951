package tracker

import (
	"context"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"
)

// Dispatch is a quiescent group handed to the processing pipeline.
type Dispatch struct {
	Kind  payload.Kind
	Group grid.Group[payload.Image]

	versions map[int64]uint64
	live     *Live
}

// Handler receives dispatches. It is called on the tracker's actor and must
// not block; long work belongs on a worker pool.
type Handler func(ctx context.Context, d *Dispatch)

// NewDispatch snapshots g with the current versions of its blocks in live.
// A nil live makes a dispatch that is always current.
func NewDispatch[T payload.Image](kind payload.Kind, g grid.Group[T], live *Live) *Dispatch {
	d := &Dispatch{
		Kind:     kind,
		Group:    grid.MapGroup(g, func(v T) payload.Image { return v }),
		versions: make(map[int64]uint64, len(g.Blocks)),
		live:     live,
	}
	if live == nil {
		return d
	}
	for _, b := range g.Blocks {
		if v, ok := live.Version(b.Key()); ok {
			d.versions[b.Key()] = v
		}
	}
	return d
}

// Current reports whether every member block is still in place, unmodified
// since the dispatch was created. A block joining the group touches its new
// neighbours, so merges also make the dispatch stale.
func (d *Dispatch) Current() bool {
	if d.live == nil {
		return true
	}
	for key, v := range d.versions {
		cur, ok := d.live.Version(key)
		if !ok || cur != v {
			return false
		}
	}
	return true
}

// Key is a best-effort stable key for the dispatched artifact.
func (d *Dispatch) Key() int64 {
	return d.Group.Key()
}
