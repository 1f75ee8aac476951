package tracker

import (
	"time"

	"github.com/canvasmod/canvasmod/grid"
)

// Watermarks maps block anchor keys to the time they were last modified.
type Watermarks map[int64]time.Time

// Scheduler decides when a group has been quiet for long enough to be
// processed.
type Scheduler[T any] struct {
	// Window is the debounce window. A group qualifies once its freshest
	// member has been untouched for more than Window/2.
	Window time.Duration
	// MinimumSize is compared against Size(group).
	MinimumSize int
	Size        func(grid.Group[T]) int

	marks Watermarks
}

// BlockCount sizes a group by its number of blocks.
func BlockCount[T any](g grid.Group[T]) int {
	return len(g.Blocks)
}

func NewScheduler[T any](window time.Duration, minimum int, size func(grid.Group[T]) int) *Scheduler[T] {
	if size == nil {
		size = BlockCount[T]
	}
	return &Scheduler[T]{
		Window:      window,
		MinimumSize: minimum,
		Size:        size,
		marks:       make(Watermarks),
	}
}

// Arm records a modification of the block anchored at key.
func (s *Scheduler[T]) Arm(key int64, now time.Time) {
	s.marks[key] = now
}

func (s *Scheduler[T]) Disarm(key int64) {
	delete(s.marks, key)
}

func (s *Scheduler[T]) Armed(key int64) (time.Time, bool) {
	t, ok := s.marks[key]
	return t, ok
}

// Pending returns the number of armed blocks.
func (s *Scheduler[T]) Pending() int {
	return len(s.marks)
}

func (s *Scheduler[T]) Reset() {
	clear(s.marks)
}

// Scan returns the groups that are ready to be processed and clears the
// watermarks of their members. A group without any armed member is never
// ready: its modification time defaults to now.
func (s *Scheduler[T]) Scan(now time.Time, groups []grid.Group[T]) []grid.Group[T] {
	var ready []grid.Group[T]
	for _, g := range groups {
		last := now
		found := false
		for _, b := range g.Blocks {
			t, ok := s.marks[b.Key()]
			if !ok {
				continue
			}
			if !found || t.After(last) {
				last = t
				found = true
			}
		}
		if !found {
			continue
		}
		if now.Sub(last) <= s.Window/2 {
			continue
		}
		if s.Size(g) < s.MinimumSize {
			continue
		}
		ready = append(ready, g)
		for _, b := range g.Blocks {
			delete(s.marks, b.Key())
		}
	}
	return ready
}
