package tracker

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/grid"
)

type DisplayConfig struct {
	Window time.Duration
	// SearchRadius bounds the distance, in cells, between a display's centre
	// and the processors considered when the display is placed.
	SearchRadius int
	// Processors with fewer draw instructions are ignored.
	MinimumInstructionCount int
	// Display groups with fewer linked processors are not dispatched.
	MinimumProcessorCount int
}

func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Window:                  5 * time.Second,
		SearchRadius:            10,
		MinimumInstructionCount: 100,
		MinimumProcessorCount:   5,
	}
}

// DisplayTracker groups touching logic displays into screens. Processors are
// tracked in a separate index that never fuses, and their instructions are
// attached to the displays they link to.
type DisplayTracker struct {
	Now func() time.Time

	config     DisplayConfig
	processors *grid.Index[*payload.Processor]
	displays   *grid.Index[*payload.Display]
	sched      *Scheduler[*payload.Display]
	live       *Live
	actor      *Actor
	handle     Handler
	log        *slog.Logger
}

func NewDisplayTracker(config DisplayConfig, handle Handler, logger *slog.Logger) *DisplayTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayTracker{
		Now:        time.Now,
		config:     config,
		processors: grid.NewIndex(grid.Single[*payload.Processor]()),
		displays:   grid.NewIndex(grid.Always[*payload.Display]()),
		sched:      NewScheduler(config.Window, config.MinimumProcessorCount, LinkedProcessors),
		live:       NewLive(),
		actor:      NewActor(string(payload.KindDisplay), 256, logger),
		handle:     handle,
		log:        logger.With("system", "display-tracker"),
	}
}

// LinkedProcessors sizes a display group by its total number of linked
// processors.
func LinkedProcessors(g grid.Group[*payload.Display]) int {
	n := 0
	for _, b := range g.Blocks {
		n += len(b.Data.Processors)
	}
	return n
}

func (t *DisplayTracker) Run(ctx context.Context) error {
	return runLoop(ctx, t.actor, t.sched.Window, t.scan)
}

// Serve drives the actor only. Scans happen when Scan is called.
func (t *DisplayTracker) Serve(ctx context.Context) error {
	return t.actor.Run(ctx)
}

// InsertDisplay places a display and links the nearby processors that draw on
// it. Processors previously attached to d are discarded.
func (t *DisplayTracker) InsertDisplay(ctx context.Context, x, y, size int, d *payload.Display, fresh bool) error {
	var err error
	if doErr := t.actor.Do(ctx, func() {
		if prev, ok := t.displays.Select(x, y); ok && (prev.X != x || prev.Y != y) {
			err = grid.ErrOccupied
			return
		}
		linked := &payload.Display{Res: d.Res, Processors: t.nearbyProcessors(x, y, size)}
		if _, _, err = t.displays.Upsert(x, y, size, linked); err != nil {
			return
		}
		key := grid.Pack(x, y)
		t.live.Touch(key)
		touchNeighbors(t.live, t.displays, x, y)
		if fresh {
			t.sched.Arm(key, t.Now())
		}
		t.updateGauges()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (t *DisplayTracker) RemoveDisplay(ctx context.Context, x, y int) error {
	return t.actor.Do(ctx, func() {
		b, ok := t.displays.Remove(x, y)
		if !ok {
			return
		}
		t.live.Drop(b.Key())
		t.sched.Disarm(b.Key())
		t.updateGauges()
	})
}

// InsertProcessor records a processor and attaches it to every display one of
// its links lands on. Processors drawing too little, or linked to nothing, are
// ignored; a processor previously placed at the same cell is unlinked either
// way.
func (t *DisplayTracker) InsertProcessor(ctx context.Context, x, y, size int, p *payload.Processor, fresh bool) error {
	var err error
	if doErr := t.actor.Do(ctx, func() {
		if prev, ok := t.processors.Select(x, y); ok {
			if prev.X != x || prev.Y != y {
				err = grid.ErrOccupied
				return
			}
			t.removeProcessor(x, y)
		}
		if len(p.Instructions) < t.config.MinimumInstructionCount || len(p.Links) == 0 {
			t.updateGauges()
			return
		}
		if err = t.processors.InsertE(x, y, size, p); err != nil {
			return
		}
		pt := payload.Point{X: x, Y: y}
		t.relink(p.Links, func(d *payload.Display) *payload.Display { return d.With(pt, p) })
		t.updateGauges()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (t *DisplayTracker) RemoveProcessor(ctx context.Context, x, y int) error {
	return t.actor.Do(ctx, func() {
		t.removeProcessor(x, y)
		t.updateGauges()
	})
}

func (t *DisplayTracker) removeProcessor(x, y int) {
	b, ok := t.processors.Remove(x, y)
	if !ok {
		return
	}
	pt := payload.Point{X: b.X, Y: b.Y}
	t.relink(b.Data.Links, func(d *payload.Display) *payload.Display { return d.Without(pt) })
}

// relink replaces every display covering one of the links with update(display)
// and re-arms it.
func (t *DisplayTracker) relink(links []payload.Point, update func(*payload.Display) *payload.Display) {
	done := make(map[int64]struct{})
	now := t.Now()
	for _, l := range links {
		b, ok := t.displays.Select(l.X, l.Y)
		if !ok {
			continue
		}
		key := b.Key()
		if _, ok := done[key]; ok {
			continue
		}
		done[key] = struct{}{}
		if _, _, err := t.displays.Upsert(b.X, b.Y, b.Size, update(b.Data)); err != nil {
			// same anchor and size, cannot conflict
			t.log.Error("failed to relink display", "x", b.X, "y", b.Y, "err", err)
			continue
		}
		t.live.Touch(key)
		t.sched.Arm(key, now)
	}
}

// nearbyProcessors collects the processors within SearchRadius of the
// display's centre that link into it.
func (t *DisplayTracker) nearbyProcessors(x, y, size int) map[payload.Point]*payload.Processor {
	r := t.config.SearchRadius
	cx := float64(x) + float64(size)/2
	cy := float64(y) + float64(size)/2
	minX := int(math.Floor(cx)) - r
	minY := int(math.Floor(cy)) - r

	out := make(map[payload.Point]*payload.Processor)
	for _, b := range t.processors.SelectRect(minX, minY, 2*r+1, 2*r+1) {
		if math.Hypot(float64(b.X)-cx, float64(b.Y)-cy) > float64(r) {
			continue
		}
		if !b.Data.LinksInto(x, y, size) {
			continue
		}
		out[payload.Point{X: b.X, Y: b.Y}] = b.Data
	}
	return out
}

func (t *DisplayTracker) Reset(ctx context.Context) error {
	return t.actor.Do(ctx, func() {
		t.processors.RemoveAll()
		t.displays.RemoveAll()
		t.live.Clear()
		t.sched.Reset()
		t.updateGauges()
	})
}

func (t *DisplayTracker) Groups(ctx context.Context) ([]grid.Group[payload.Image], error) {
	var out []grid.Group[payload.Image]
	err := t.actor.Do(ctx, func() {
		for _, g := range t.displays.Groups() {
			out = append(out, grid.MapGroup(g, func(d *payload.Display) payload.Image { return d }))
		}
	})
	return out, err
}

// Processors returns a copy of the tracked processors.
func (t *DisplayTracker) Processors(ctx context.Context) ([]grid.Block[*payload.Processor], error) {
	var out []grid.Block[*payload.Processor]
	err := t.actor.Do(ctx, func() {
		out = t.processors.SelectAll()
	})
	return out, err
}

func (t *DisplayTracker) Scan(ctx context.Context) error {
	return t.actor.Do(ctx, func() { t.scan(ctx) })
}

func (t *DisplayTracker) scan(ctx context.Context) {
	start := time.Now()
	ready := t.sched.Scan(t.Now(), t.displays.Groups())
	for _, g := range ready {
		t.log.Debug("dispatching display group", "group", g.String(), "processors", LinkedProcessors(g))
		dispatchCount.WithLabelValues(string(payload.KindDisplay)).Inc()
		t.handle(ctx, NewDispatch(payload.KindDisplay, g, t.live))
	}
	scanDuration.WithLabelValues(string(payload.KindDisplay)).Observe(time.Since(start).Seconds())
}

func (t *DisplayTracker) updateGauges() {
	trackedBlocks.WithLabelValues(string(payload.KindDisplay)).Set(float64(t.displays.Len()))
	trackedBlocks.WithLabelValues(string(payload.KindProcessor)).Set(float64(t.processors.Len()))
}
