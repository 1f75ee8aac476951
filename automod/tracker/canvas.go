package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"
)

type CanvasConfig struct {
	Window           time.Duration
	MinimumGroupSize int
}

func DefaultCanvasConfig() CanvasConfig {
	return CanvasConfig{
		Window:           5 * time.Second,
		MinimumGroupSize: 9,
	}
}

// CanvasTracker groups touching canvases into pictures.
type CanvasTracker struct {
	// Now is the clock used for watermarks and scans.
	Now func() time.Time

	index  *grid.Index[*payload.Canvas]
	sched  *Scheduler[*payload.Canvas]
	live   *Live
	actor  *Actor
	handle Handler
	log    *slog.Logger
}

func NewCanvasTracker(config CanvasConfig, handle Handler, logger *slog.Logger) *CanvasTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CanvasTracker{
		Now:    time.Now,
		index:  grid.NewIndex(grid.Always[*payload.Canvas]()),
		sched:  NewScheduler(config.Window, config.MinimumGroupSize, BlockCount[*payload.Canvas]),
		live:   NewLive(),
		actor:  NewActor(string(payload.KindCanvas), 256, logger),
		handle: handle,
		log:    logger.With("system", "canvas-tracker"),
	}
}

// Run drives the actor and the periodic scan until ctx is cancelled.
func (t *CanvasTracker) Run(ctx context.Context) error {
	return runLoop(ctx, t.actor, t.sched.Window, t.scan)
}

// Serve drives the actor only. Scans happen when Scan is called.
func (t *CanvasTracker) Serve(ctx context.Context) error {
	return t.actor.Run(ctx)
}

// Insert places a canvas, replacing the one anchored at the same cell. Fresh
// canvases (built or edited by a player) arm the scheduler.
func (t *CanvasTracker) Insert(ctx context.Context, x, y, size int, c *payload.Canvas, fresh bool) error {
	var err error
	if doErr := t.actor.Do(ctx, func() {
		if prev, ok := t.index.Select(x, y); ok && (prev.X != x || prev.Y != y) {
			err = grid.ErrOccupied
			return
		}
		if _, _, err = t.index.Upsert(x, y, size, c); err != nil {
			return
		}
		key := grid.Pack(x, y)
		t.live.Touch(key)
		touchNeighbors(t.live, t.index, x, y)
		if fresh {
			t.sched.Arm(key, t.Now())
		}
		trackedBlocks.WithLabelValues(string(payload.KindCanvas)).Set(float64(t.index.Len()))
	}); doErr != nil {
		return doErr
	}
	return err
}

// Remove deletes the canvas covering (x, y), if any.
func (t *CanvasTracker) Remove(ctx context.Context, x, y int) error {
	return t.actor.Do(ctx, func() {
		b, ok := t.index.Remove(x, y)
		if !ok {
			return
		}
		t.live.Drop(b.Key())
		t.sched.Disarm(b.Key())
		trackedBlocks.WithLabelValues(string(payload.KindCanvas)).Set(float64(t.index.Len()))
	})
}

func (t *CanvasTracker) Reset(ctx context.Context) error {
	return t.actor.Do(ctx, func() {
		t.index.RemoveAll()
		t.live.Clear()
		t.sched.Reset()
		trackedBlocks.WithLabelValues(string(payload.KindCanvas)).Set(0)
	})
}

// Groups returns a copy of the current groups.
func (t *CanvasTracker) Groups(ctx context.Context) ([]grid.Group[payload.Image], error) {
	var out []grid.Group[payload.Image]
	err := t.actor.Do(ctx, func() {
		for _, g := range t.index.Groups() {
			out = append(out, grid.MapGroup(g, func(c *payload.Canvas) payload.Image { return c }))
		}
	})
	return out, err
}

// Scan runs a scheduling pass immediately.
func (t *CanvasTracker) Scan(ctx context.Context) error {
	return t.actor.Do(ctx, func() { t.scan(ctx) })
}

func (t *CanvasTracker) scan(ctx context.Context) {
	start := time.Now()
	ready := t.sched.Scan(t.Now(), t.index.Groups())
	for _, g := range ready {
		t.log.Debug("dispatching canvas group", "group", g.String())
		dispatchCount.WithLabelValues(string(payload.KindCanvas)).Inc()
		t.handle(ctx, NewDispatch(payload.KindCanvas, g, t.live))
	}
	scanDuration.WithLabelValues(string(payload.KindCanvas)).Observe(time.Since(start).Seconds())
}

// runLoop runs the actor and enqueues a scan every period.
func runLoop(ctx context.Context, actor *Actor, period time.Duration, scan func(context.Context)) error {
	errc := make(chan error, 1)
	go func() {
		errc <- actor.Run(ctx)
	}()

	if period <= 0 {
		period = DefaultCanvasConfig().Window
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return <-errc
		case <-ticker.C:
			if err := actor.Submit(ctx, func() { scan(ctx) }); err != nil {
				return <-errc
			}
		}
	}
}
