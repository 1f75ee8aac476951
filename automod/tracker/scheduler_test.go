package tracker

import (
	"testing"
	"time"

	"github.com/canvasmod/canvasmod/grid"
	"github.com/stretchr/testify/assert"
)

func lineGroup(n int) grid.Group[int] {
	idx := grid.NewIndex[int](nil)
	for i := 0; i < n; i++ {
		idx.Insert(i, 0, 1, i)
	}
	return idx.Groups()[0]
}

func TestSchedulerScan(t *testing.T) {
	assert := assert.New(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler[int](10*time.Second, 3, nil)
	g := lineGroup(3)

	// nothing armed, never ready
	assert.Empty(s.Scan(t0.Add(time.Hour), []grid.Group[int]{g}))

	s.Arm(grid.Pack(0, 0), t0)
	s.Arm(grid.Pack(2, 0), t0.Add(2*time.Second))
	assert.Equal(2, s.Pending())

	// the freshest member governs, and the boundary itself is not enough
	assert.Empty(s.Scan(t0.Add(7*time.Second), []grid.Group[int]{g}))
	assert.Equal(2, s.Pending())

	ready := s.Scan(t0.Add(7*time.Second+time.Millisecond), []grid.Group[int]{g})
	assert.Len(ready, 1)
	assert.Equal(0, s.Pending())

	// dispatching clears the watermarks
	assert.Empty(s.Scan(t0.Add(time.Hour), []grid.Group[int]{g}))
}

func TestSchedulerMinimumSize(t *testing.T) {
	assert := assert.New(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler[int](time.Second, 4, nil)
	g := lineGroup(3)

	s.Arm(grid.Pack(1, 0), t0)
	assert.Empty(s.Scan(t0.Add(time.Minute), []grid.Group[int]{g}))
	// undersized groups keep their watermarks until they grow
	_, ok := s.Armed(grid.Pack(1, 0))
	assert.True(ok)

	assert.Len(s.Scan(t0.Add(time.Minute), []grid.Group[int]{lineGroup(4)}), 1)

	s.Arm(grid.Pack(0, 0), t0)
	s.Disarm(grid.Pack(0, 0))
	s.Arm(grid.Pack(1, 0), t0)
	s.Reset()
	assert.Equal(0, s.Pending())
}
