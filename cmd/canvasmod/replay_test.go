package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedStreamIsDeterministic(t *testing.T) {
	assert := assert.New(t)

	a := newEventGenerator(7).Stream(2, 3, 1, 5, 120)
	b := newEventGenerator(7).Stream(2, 3, 1, 5, 120)
	c := newEventGenerator(8).Stream(2, 3, 1, 5, 120)

	ja, err := json.Marshal(a)
	assert.NoError(err)
	jb, err := json.Marshal(b)
	assert.NoError(err)
	jc, err := json.Marshal(c)
	assert.NoError(err)
	assert.Equal(string(ja), string(jb))
	assert.NotEqual(string(ja), string(jc))

	// reset, 2 pictures of 9 canvases, 1 display with 5 processors
	assert.Len(a, 1+18+1+5)
	for i, evt := range a {
		assert.NoError(evt.Validate())
		assert.Equal(int64(i+1), evt.Seq)
	}
}

func TestReplayGeneratedStream(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	evts := newEventGenerator(1).Stream(3, 3, 2, 5, 120)

	// round trip through the JSON lines format gen-events writes
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, evt := range evts {
		require.NoError(enc.Encode(evt))
	}
	read, err := readEvents(&buf)
	require.NoError(err)
	require.Len(read, len(evts))

	canvas, display := tracker.DefaultCanvasConfig(), tracker.DefaultDisplayConfig()
	dispatches, err := replay(context.Background(), canvas, display, read)
	require.NoError(err)

	kinds := map[payload.Kind]int{}
	for _, d := range dispatches {
		kinds[d.Kind]++
		switch d.Kind {
		case payload.KindCanvas:
			assert.Equal(9, d.Group.Len())
		case payload.KindDisplay:
			assert.Equal(1, d.Group.Len())
		}
	}
	assert.Equal(3, kinds[payload.KindCanvas])
	assert.Equal(2, kinds[payload.KindDisplay])

	tree := dispatchTree(dispatches, true).String()
	assert.Contains(tree, "dispatched groups (5)")
	assert.Contains(tree, "blocks: 9")
	assert.Contains(tree, "tiles")
}

func TestReplayWaitsForQuiescence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	canvas := func(x int, at time.Duration) *events.BlockEvent {
		return &events.BlockEvent{
			Op:     events.OpInsert,
			Kind:   payload.KindCanvas,
			X:      x,
			Size:   2,
			Fresh:  true,
			Time:   base.Add(at).UnixMilli(),
			Canvas: &payload.Canvas{Res: 1, Pixels: []uint32{0xff0000}},
		}
	}
	config := tracker.CanvasConfig{Window: 10 * time.Second, MinimumGroupSize: 2}

	// the lone canvas is below the minimum size, so only the pair is
	// dispatched, once the clock moves past the last insert
	evts := []*events.BlockEvent{
		canvas(0, 0),
		canvas(2, 20*time.Second),
	}
	dispatches, err := replay(context.Background(), config, tracker.DefaultDisplayConfig(), evts)
	require.NoError(err)
	require.Len(dispatches, 1)
	assert.Equal(2, dispatches[0].Group.Len())
}

func TestReadEventsArray(t *testing.T) {
	assert := assert.New(t)

	evts, err := readEvents(strings.NewReader(`[{"op":"reset"},{"op":"remove","kind":"canvas","x":1,"y":2}]`))
	assert.NoError(err)
	assert.Len(evts, 2)

	_, err = readEvents(strings.NewReader(`{"op":"reset"} {"op":`))
	assert.ErrorIs(err, events.ErrInvalidEvent)
}
