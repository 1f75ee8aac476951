package main

import (
	"bufio"
	"encoding/json"
	"net/netip"
	"os"
	"time"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/events"

	"github.com/brianvoe/gofakeit/v6"
	cli "github.com/urfave/cli/v2"
)

const (
	fakeCanvasSize    = 2
	fakeCanvasRes     = 12
	fakeDisplaySize   = 6
	fakeDisplayRes    = 176
	fakeWorldCells    = 500
	fakeEventInterval = 250 * time.Millisecond
)

var genEventsCmd = &cli.Command{
	Name:  "gen-events",
	Usage: "write a synthetic block event stream (JSON lines) for development and replay",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed; the same seed always yields the same stream",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "pictures",
			Usage: "number of canvas pictures to build",
			Value: 5,
		},
		&cli.IntFlag{
			Name:  "displays",
			Usage: "number of displays to build, each with its processors",
			Value: 2,
		},
		&cli.IntFlag{
			Name:  "picture-side",
			Usage: "canvases per picture side",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "processors",
			Usage: "processors linked to each display",
			Value: 5,
		},
		&cli.IntFlag{
			Name:  "instructions",
			Usage: "draw instructions per processor",
			Value: 120,
		},
	},
	Action: func(cctx *cli.Context) error {
		gen := newEventGenerator(cctx.Int64("seed"))
		evts := gen.Stream(cctx.Int("pictures"), cctx.Int("picture-side"), cctx.Int("displays"), cctx.Int("processors"), cctx.Int("instructions"))

		out := bufio.NewWriter(os.Stdout)
		enc := json.NewEncoder(out)
		for _, evt := range evts {
			if err := enc.Encode(evt); err != nil {
				return err
			}
		}
		return out.Flush()
	},
}

type eventGenerator struct {
	faker *gofakeit.Faker
	seq   int64
	now   time.Time
	out   []*events.BlockEvent
}

func newEventGenerator(seed int64) *eventGenerator {
	return &eventGenerator{
		faker: gofakeit.New(seed),
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *eventGenerator) emit(evt *events.BlockEvent) {
	g.seq++
	g.now = g.now.Add(fakeEventInterval)
	evt.Seq = g.seq
	evt.Time = g.now.UnixMilli()
	g.out = append(g.out, evt)
}

func (g *eventGenerator) author() *payload.Author {
	addr, err := netip.ParseAddr(g.faker.IPv4Address())
	if err != nil {
		addr = netip.IPv4Unspecified()
	}
	return &payload.Author{UUID: g.faker.UUID(), Address: addr}
}

// Stream builds pictures and displays in disjoint bands of the world so no
// two artifacts touch.
func (g *eventGenerator) Stream(pictures, side, displays, processors, instructions int) []*events.BlockEvent {
	g.out = nil
	g.emit(&events.BlockEvent{Op: events.OpReset})

	row := 0
	for i := 0; i < pictures; i++ {
		g.picture(g.faker.Number(0, fakeWorldCells), row, side)
		row += side*fakeCanvasSize + 2
	}
	for i := 0; i < displays; i++ {
		g.display(g.faker.Number(0, fakeWorldCells), row, processors, instructions)
		row += fakeDisplaySize + 4
	}
	return g.out
}

func (g *eventGenerator) picture(x0, y0, side int) {
	author := g.author()
	for dy := 0; dy < side; dy++ {
		for dx := 0; dx < side; dx++ {
			pixels := make([]uint32, fakeCanvasRes*fakeCanvasRes)
			for i := range pixels {
				pixels[i] = g.faker.Uint32() & 0xffffff
			}
			g.emit(&events.BlockEvent{
				Op:     events.OpInsert,
				Kind:   payload.KindCanvas,
				X:      x0 + dx*fakeCanvasSize,
				Y:      y0 + dy*fakeCanvasSize,
				Size:   fakeCanvasSize,
				Fresh:  true,
				Canvas: &payload.Canvas{Res: fakeCanvasRes, Pixels: pixels, Author: author},
			})
		}
	}
}

// display places the display first, then processors in the row just below
// it, each linked to the display's anchor.
func (g *eventGenerator) display(x0, y0, processors, instructions int) {
	g.emit(&events.BlockEvent{
		Op:      events.OpInsert,
		Kind:    payload.KindDisplay,
		X:       x0,
		Y:       y0 + 1,
		Size:    fakeDisplaySize,
		Fresh:   true,
		Display: &payload.Display{Res: fakeDisplayRes},
	})
	author := g.author()
	for i := 0; i < processors; i++ {
		g.emit(&events.BlockEvent{
			Op:    events.OpInsert,
			Kind:  payload.KindProcessor,
			X:     x0 + i,
			Y:     y0,
			Size:  1,
			Fresh: true,
			Processor: &payload.Processor{
				Instructions: g.instructions(instructions),
				Links:        []payload.Point{{X: x0, Y: y0 + 1}},
				Author:       author,
			},
		})
	}
}

func (g *eventGenerator) instructions(n int) []payload.Instruction {
	out := make([]payload.Instruction, 0, n)
	for len(out) < n {
		if len(out)%4 == 0 {
			out = append(out, payload.Instruction{Color: &payload.Color{
				R: uint8(g.faker.Number(0, 255)),
				G: uint8(g.faker.Number(0, 255)),
				B: uint8(g.faker.Number(0, 255)),
				A: 255,
			}})
			continue
		}
		out = append(out, payload.Instruction{Rect: &payload.Rect{
			X: g.faker.Number(0, fakeDisplayRes-1),
			Y: g.faker.Number(0, fakeDisplayRes-1),
			W: g.faker.Number(1, 32),
			H: g.faker.Number(1, 32),
		}})
	}
	return out
}
