package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type collector struct {
	mu         sync.Mutex
	dispatches []*Dispatch
}

func (c *collector) handle(ctx context.Context, d *Dispatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatches = append(c.dispatches, d)
}

func (c *collector) take() []*Dispatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.dispatches
	c.dispatches = nil
	return out
}

func startActor(t *testing.T, a *Actor) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return ctx
}

func TestCanvasTracker(t *testing.T) {
	assert := assert.New(t)
	clock := newFakeClock()
	col := &collector{}
	tr := NewCanvasTracker(CanvasConfig{Window: 10 * time.Second, MinimumGroupSize: 9}, col.handle, nil)
	tr.Now = clock.Now
	ctx := startActor(t, tr.actor)

	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			require.NoError(t, tr.Insert(ctx, x*2, y*2, 2, &payload.Canvas{Res: 12}, true))
		}
	}
	groups, err := tr.Groups(ctx)
	require.NoError(t, err)
	assert.Len(groups, 1)

	clock.Advance(5 * time.Second)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())

	clock.Advance(time.Second)
	require.NoError(t, tr.Scan(ctx))
	ds := col.take()
	require.Len(t, ds, 1)
	d := ds[0]
	assert.Equal(payload.KindCanvas, d.Kind)
	assert.Equal(9, d.Group.Len())
	assert.Equal(6, d.Group.W)
	assert.True(d.Current())

	// dispatched once per quiescent period
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())

	// an edit invalidates the snapshot and re-arms the group
	require.NoError(t, tr.Insert(ctx, 0, 0, 2, &payload.Canvas{Res: 12, Pixels: []uint32{0xffffff}}, true))
	assert.False(d.Current())
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	assert.Len(col.take(), 1)
}

func TestCanvasTrackerStaleInsertsAndRemovals(t *testing.T) {
	assert := assert.New(t)
	clock := newFakeClock()
	col := &collector{}
	tr := NewCanvasTracker(CanvasConfig{Window: time.Second, MinimumGroupSize: 2}, col.handle, nil)
	tr.Now = clock.Now
	ctx := startActor(t, tr.actor)

	// blocks loaded with the world do not arm the scheduler
	require.NoError(t, tr.Insert(ctx, 0, 0, 1, &payload.Canvas{Res: 8}, false))
	require.NoError(t, tr.Insert(ctx, 1, 0, 1, &payload.Canvas{Res: 8}, false))
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())

	// removing the only armed block leaves nothing to dispatch
	require.NoError(t, tr.Insert(ctx, 2, 0, 1, &payload.Canvas{Res: 8}, true))
	require.NoError(t, tr.Remove(ctx, 2, 0))
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())

	// inserting over a block anchored elsewhere is rejected
	require.NoError(t, tr.Insert(ctx, 5, 5, 2, &payload.Canvas{Res: 8}, true))
	assert.ErrorIs(tr.Insert(ctx, 6, 6, 1, &payload.Canvas{Res: 8}, true), grid.ErrOccupied)

	require.NoError(t, tr.Reset(ctx))
	groups, err := tr.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(groups)
	assert.Equal(0, tr.sched.Pending())
	assert.Equal(0, tr.live.Len())
}

func drawing(n int, links ...payload.Point) *payload.Processor {
	insts := make([]payload.Instruction, n)
	for i := range insts {
		insts[i] = payload.Instruction{Rect: &payload.Rect{X: i, Y: i, W: 1, H: 1}}
	}
	return &payload.Processor{Instructions: insts, Links: links}
}

func TestDisplayTracker(t *testing.T) {
	assert := assert.New(t)
	clock := newFakeClock()
	col := &collector{}
	tr := NewDisplayTracker(DisplayConfig{
		Window:                  10 * time.Second,
		SearchRadius:            10,
		MinimumInstructionCount: 3,
		MinimumProcessorCount:   2,
	}, col.handle, nil)
	tr.Now = clock.Now
	ctx := startActor(t, tr.actor)

	// processors placed before the display are discovered by proximity
	require.NoError(t, tr.InsertProcessor(ctx, 0, 8, 1, drawing(5, payload.Point{X: 3, Y: 3}), true))
	require.NoError(t, tr.InsertProcessor(ctx, 1, 8, 1, drawing(2, payload.Point{X: 3, Y: 3}), true))
	require.NoError(t, tr.InsertProcessor(ctx, 40, 40, 1, drawing(5, payload.Point{X: 3, Y: 3}), true))
	procs, err := tr.Processors(ctx)
	require.NoError(t, err)
	// the short program was ignored
	assert.Len(procs, 2)

	require.NoError(t, tr.InsertDisplay(ctx, 2, 2, 6, &payload.Display{Res: 176}, true))
	groups, err := tr.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	d := groups[0].Blocks[0].Data.(*payload.Display)
	// the far processor is outside the search radius
	assert.Len(d.Processors, 1)

	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take(), "one processor is below the minimum")

	// a processor placed after the display is linked and re-arms it
	require.NoError(t, tr.InsertProcessor(ctx, 9, 2, 1, drawing(4, payload.Point{X: 7, Y: 7}, payload.Point{X: 2, Y: 2}), true))
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	ds := col.take()
	require.Len(t, ds, 1)
	assert.Equal(payload.KindDisplay, ds[0].Kind)
	assert.Len(ds[0].Group.Blocks[0].Data.(*payload.Display).Processors, 2)
	assert.True(ds[0].Current())

	// unlinking a processor updates the display
	require.NoError(t, tr.RemoveProcessor(ctx, 0, 8))
	assert.False(ds[0].Current())
	groups, err = tr.Groups(ctx)
	require.NoError(t, err)
	assert.Len(groups[0].Blocks[0].Data.(*payload.Display).Processors, 1)

	// editing a processor below the threshold unlinks it too
	require.NoError(t, tr.InsertProcessor(ctx, 9, 2, 1, drawing(1, payload.Point{X: 2, Y: 2}), true))
	groups, err = tr.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(groups[0].Blocks[0].Data.(*payload.Display).Processors)

	require.NoError(t, tr.RemoveDisplay(ctx, 4, 4))
	groups, err = tr.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(groups)
	assert.Equal(0, tr.live.Len())
}

func TestRouter(t *testing.T) {
	assert := assert.New(t)
	col := &collector{}
	canvases := NewCanvasTracker(DefaultCanvasConfig(), col.handle, nil)
	displays := NewDisplayTracker(DefaultDisplayConfig(), col.handle, nil)
	ctx := startActor(t, canvases.actor)
	go displays.actor.Run(ctx)

	r := &Router{Canvases: canvases, Displays: displays}
	assert.NoError(r.OnInsert(ctx, payload.KindCanvas, 0, 0, 2, &payload.Canvas{Res: 12}, true))
	assert.NoError(r.OnInsert(ctx, payload.KindDisplay, 10, 10, 3, &payload.Display{Res: 80}, true))
	assert.ErrorIs(r.OnInsert(ctx, payload.KindCanvas, 5, 5, 1, &payload.Display{}, true), ErrPayloadMismatch)
	assert.ErrorIs(r.OnInsert(ctx, payload.Kind("sorter"), 5, 5, 1, nil, true), ErrUnknownKind)
	assert.ErrorIs(r.OnRemove(ctx, payload.Kind("sorter"), 5, 5), ErrUnknownKind)

	groups, err := canvases.Groups(ctx)
	assert.NoError(err)
	assert.Len(groups, 1)

	assert.NoError(r.OnRemove(ctx, payload.KindCanvas, 1, 1))
	groups, err = canvases.Groups(ctx)
	assert.NoError(err)
	assert.Empty(groups)

	assert.NoError(r.OnReset(ctx))
	groups, err = displays.Groups(ctx)
	assert.NoError(err)
	assert.Empty(groups)

	// kinds without a tracker are dropped
	empty := &Router{}
	assert.NoError(empty.OnInsert(ctx, payload.KindCanvas, 0, 0, 1, &payload.Canvas{}, true))
}

func TestActor(t *testing.T) {
	assert := assert.New(t)
	a := NewActor("test", 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(stopped)
	}()

	n := 0
	assert.NoError(a.Do(ctx, func() { n++ }))
	assert.NoError(a.Do(ctx, func() { panic("boom") }))
	assert.NoError(a.Do(ctx, func() { n++ }))
	assert.Equal(2, n)

	cancel()
	<-stopped
	assert.ErrorIs(a.Do(context.Background(), func() {}), ErrActorStopped)
}

func TestLive(t *testing.T) {
	assert := assert.New(t)
	l := NewLive()
	v1 := l.Touch(1)
	v2 := l.Touch(1)
	assert.Greater(v2, v1)
	v, ok := l.Version(1)
	assert.True(ok)
	assert.Equal(v2, v)
	l.Drop(1)
	_, ok = l.Version(1)
	assert.False(ok)
}

func TestCanvasTrackerContinuousEditsNeverSettle(t *testing.T) {
	assert := assert.New(t)
	clock := newFakeClock()
	col := &collector{}
	window := 8 * time.Second
	tr := NewCanvasTracker(CanvasConfig{Window: window, MinimumGroupSize: 2}, col.handle, nil)
	tr.Now = clock.Now
	ctx := startActor(t, tr.actor)

	require.NoError(t, tr.Insert(ctx, 0, 0, 2, &payload.Canvas{Res: 8}, true))
	require.NoError(t, tr.Insert(ctx, 2, 0, 2, &payload.Canvas{Res: 8}, true))

	// edited every quarter window for three windows
	for elapsed := time.Duration(0); elapsed < 3*window; elapsed += window / 4 {
		clock.Advance(window / 4)
		require.NoError(t, tr.Insert(ctx, 2, 0, 2, &payload.Canvas{Res: 8, Pixels: []uint32{uint32(elapsed)}}, true))
		require.NoError(t, tr.Scan(ctx))
		assert.Empty(col.take(), "dispatched after %s of edits", elapsed)
	}

	// quiet up to and including the half window mark
	clock.Advance(window / 4)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())
	clock.Advance(window / 4)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())

	// one scan interval past it
	clock.Advance(window / 4)
	require.NoError(t, tr.Scan(ctx))
	ds := col.take()
	require.Len(t, ds, 1)
	assert.Equal(2, ds[0].Group.Len())

	clock.Advance(window)
	require.NoError(t, tr.Scan(ctx))
	assert.Empty(col.take())
}

func TestCanvasTrackerMergeMakesDispatchStale(t *testing.T) {
	assert := assert.New(t)
	clock := newFakeClock()
	col := &collector{}
	tr := NewCanvasTracker(CanvasConfig{Window: time.Second, MinimumGroupSize: 2}, col.handle, nil)
	tr.Now = clock.Now
	ctx := startActor(t, tr.actor)

	require.NoError(t, tr.Insert(ctx, 0, 0, 2, &payload.Canvas{Res: 8}, true))
	require.NoError(t, tr.Insert(ctx, 2, 0, 2, &payload.Canvas{Res: 8}, true))
	clock.Advance(time.Minute)
	require.NoError(t, tr.Scan(ctx))
	ds := col.take()
	require.Len(t, ds, 1)
	assert.True(ds[0].Current())

	// a block far away leaves the dispatch alone
	require.NoError(t, tr.Insert(ctx, 20, 20, 2, &payload.Canvas{Res: 8}, true))
	assert.True(ds[0].Current())

	// a block joining the group does not
	require.NoError(t, tr.Insert(ctx, 4, 0, 2, &payload.Canvas{Res: 8}, true))
	assert.False(ds[0].Current())
}
