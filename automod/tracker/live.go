package tracker

import (
	"sync/atomic"

	"github.com/canvasmod/canvasmod/grid"

	"github.com/puzpuzpuz/xsync/v3"
)

// Live tracks a version number per block anchor. Versions are bumped by the
// owning actor and may be read from any goroutine.
type Live struct {
	seq      atomic.Uint64
	versions *xsync.MapOf[int64, uint64]
}

func NewLive() *Live {
	return &Live{
		versions: xsync.NewMapOf[int64, uint64](),
	}
}

// Touch assigns a new version to the anchor.
func (l *Live) Touch(key int64) uint64 {
	v := l.seq.Add(1)
	l.versions.Store(key, v)
	return v
}

func (l *Live) Drop(key int64) {
	l.versions.Delete(key)
}

func (l *Live) Clear() {
	l.versions.Clear()
}

func (l *Live) Version(key int64) (uint64, bool) {
	return l.versions.Load(key)
}

func (l *Live) Len() int {
	return l.versions.Size()
}

// touchNeighbors bumps the versions of the blocks linked to the block at
// (x, y), so dispatches of the groups it just joined are no longer current.
func touchNeighbors[T any](l *Live, idx *grid.Index[T], x, y int) {
	for _, n := range idx.Neighbors(x, y) {
		l.Touch(n.Key())
	}
}
