// Package events defines the wire format of the block lifecycle feed and
// consumes it from a websocket stream.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/tracker"
)

type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
	OpReset  Op = "reset"
)

var ErrInvalidEvent = errors.New("invalid block event")

const (
	// MaxBlockSize bounds the side of a block, in cells. Host blocks are a
	// few cells wide.
	MaxBlockSize = 16
	// MaxResolution bounds the pixel side of a canvas or display raster.
	MaxResolution = 512
)

// BlockEvent is one notification on the feed. Insert events carry exactly one
// payload, matching Kind.
type BlockEvent struct {
	Seq   int64        `json:"seq,omitempty"`
	// Time is when the host saw the change, in unix milliseconds. Only the
	// replay tool reads it.
	Time  int64        `json:"time,omitempty"`
	Op    Op           `json:"op"`
	Kind  payload.Kind `json:"kind,omitempty"`
	X     int          `json:"x"`
	Y     int          `json:"y"`
	Size  int          `json:"size,omitempty"`
	Fresh bool         `json:"fresh,omitempty"`

	Canvas    *payload.Canvas    `json:"canvas,omitempty"`
	Display   *payload.Display   `json:"display,omitempty"`
	Processor *payload.Processor `json:"processor,omitempty"`
}

// Payload returns the payload matching Kind, or nil.
func (evt *BlockEvent) Payload() any {
	switch evt.Kind {
	case payload.KindCanvas:
		if evt.Canvas != nil {
			return evt.Canvas
		}
	case payload.KindDisplay:
		if evt.Display != nil {
			return evt.Display
		}
	case payload.KindProcessor:
		if evt.Processor != nil {
			return evt.Processor
		}
	}
	return nil
}

func (evt *BlockEvent) Validate() error {
	if evt == nil {
		return fmt.Errorf("%w: null event", ErrInvalidEvent)
	}
	switch evt.Op {
	case OpReset:
		return nil
	case OpRemove:
		if !evt.Kind.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, evt.Kind)
		}
		return nil
	case OpInsert:
		if !evt.Kind.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, evt.Kind)
		}
		if evt.Size <= 0 || evt.Size > MaxBlockSize {
			return fmt.Errorf("%w: size must be in [1, %d], got %d", ErrInvalidEvent, MaxBlockSize, evt.Size)
		}
		n := 0
		for _, set := range []bool{evt.Canvas != nil, evt.Display != nil, evt.Processor != nil} {
			if set {
				n++
			}
		}
		if n != 1 || evt.Payload() == nil {
			return fmt.Errorf("%w: insert needs exactly one %s payload", ErrInvalidEvent, evt.Kind)
		}
		if img, ok := evt.Payload().(payload.Image); ok {
			if res := img.Resolution(); res <= 0 || res > MaxResolution {
				return fmt.Errorf("%w: resolution must be in [1, %d], got %d", ErrInvalidEvent, MaxResolution, res)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidEvent, evt.Op)
}

// Apply validates the event and forwards it to the feed.
func Apply(ctx context.Context, feed tracker.Feed, evt *BlockEvent) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	switch evt.Op {
	case OpInsert:
		return feed.OnInsert(ctx, evt.Kind, evt.X, evt.Y, evt.Size, evt.Payload(), evt.Fresh)
	case OpRemove:
		return feed.OnRemove(ctx, evt.Kind, evt.X, evt.Y)
	default:
		return feed.OnReset(ctx)
	}
}

// DecodeEvents parses either a single event object or an array of events.
func DecodeEvents(b []byte) ([]*BlockEvent, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var evts []*BlockEvent
		if err := json.Unmarshal(b, &evts); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		for i, evt := range evts {
			if evt == nil {
				return nil, fmt.Errorf("%w: null event at index %d", ErrInvalidEvent, i)
			}
		}
		return evts, nil
	}
	var evt BlockEvent
	if err := json.Unmarshal(b, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return []*BlockEvent{&evt}, nil
}
