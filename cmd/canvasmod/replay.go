package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/render"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/events"

	cli "github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"
	"golang.org/x/sync/errgroup"
)

var replayCmd = &cli.Command{
	Name:      "replay",
	Usage:     "run recorded block events through the trackers and print the groups that would be classified",
	ArgsUsage: "<events-file>",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "fingerprint",
			Usage: "render each dispatched group and report its fingerprint size",
		},
	}, trackerFlags...),
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("expected a single events file argument")
		}
		canvasConfig, displayConfig, err := trackerConfigs(cctx)
		if err != nil {
			return err
		}

		f, err := os.Open(cctx.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()
		evts, err := readEvents(f)
		if err != nil {
			return err
		}

		dispatches, err := replay(cctx.Context, canvasConfig, displayConfig, evts)
		if err != nil {
			return err
		}
		fmt.Print(dispatchTree(dispatches, cctx.Bool("fingerprint")).String())
		return nil
	},
}

// readEvents accepts a JSON array of events, or a stream of event objects
// (one per line, or simply concatenated).
func readEvents(r io.Reader) ([]*events.BlockEvent, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return events.DecodeEvents(b)
	}

	var out []*events.BlockEvent
	dec := json.NewDecoder(bytes.NewReader(b))
	for {
		var evt events.BlockEvent
		if err := dec.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("%w: event %d: %w", events.ErrInvalidEvent, len(out), err)
		}
		out = append(out, &evt)
	}
}

// replay feeds evts to fresh trackers under a virtual clock driven by event
// timestamps, scanning after every event. Events without a timestamp happen
// at the time of the previous one. After the last event the clock moves one
// window forward so every pending group settles.
func replay(ctx context.Context, canvasConfig tracker.CanvasConfig, displayConfig tracker.DisplayConfig, evts []*events.BlockEvent) ([]*tracker.Dispatch, error) {
	var (
		lk         sync.Mutex
		dispatches []*tracker.Dispatch
		clock      atomic.Int64
	)
	collect := func(ctx context.Context, d *tracker.Dispatch) {
		lk.Lock()
		defer lk.Unlock()
		dispatches = append(dispatches, d)
	}
	now := func() time.Time { return time.UnixMilli(clock.Load()) }

	logger := slog.Default().With("system", "replay")
	canvases := tracker.NewCanvasTracker(canvasConfig, collect, logger)
	canvases.Now = now
	displays := tracker.NewDisplayTracker(displayConfig, collect, logger)
	displays.Now = now
	router := &tracker.Router{Canvases: canvases, Displays: displays}

	ctx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return ignoreCanceled(canvases.Serve(egCtx)) })
	eg.Go(func() error { return ignoreCanceled(displays.Serve(egCtx)) })

	scan := func() error {
		if err := canvases.Scan(ctx); err != nil {
			return err
		}
		return displays.Scan(ctx)
	}

	err := func() error {
		for i, evt := range evts {
			if evt.Time > clock.Load() {
				clock.Store(evt.Time)
			}
			if err := events.Apply(ctx, router, evt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("skipping rejected event", "index", i, "seq", evt.Seq, "err", err)
				continue
			}
			if err := scan(); err != nil {
				return err
			}
		}
		window := max(canvasConfig.Window, displayConfig.Window)
		clock.Add(window.Milliseconds() + 1)
		return scan()
	}()

	cancel()
	if werr := eg.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}

	lk.Lock()
	defer lk.Unlock()
	return dispatches, nil
}

func dispatchTree(dispatches []*tracker.Dispatch, fingerprint bool) treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("dispatched groups (%d)", len(dispatches)))
	var renderer *render.Renderer
	if fingerprint {
		renderer = render.NewRenderer()
	}
	for _, d := range dispatches {
		g := d.Group
		branch := tree.AddBranch(fmt.Sprintf("%s at (%d,%d) %dx%d", d.Kind, g.X, g.Y, g.W, g.H))
		branch.AddNode(fmt.Sprintf("blocks: %d", g.Len()))
		if author := payload.DominantAuthor(payload.Images(g)); author != nil {
			branch.AddNode(fmt.Sprintf("author: %s", author))
		} else {
			branch.AddNode("author: unknown")
		}
		if renderer != nil {
			img := renderer.Render(g)
			fp := imagecache.Compute(img)
			branch.AddNode(fmt.Sprintf("image: %dx%d, %d tiles", img.Bounds().Dx(), img.Bounds().Dy(), len(fp)))
		}
	}
	return tree
}
