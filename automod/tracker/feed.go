package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/canvasmod/canvasmod/automod/payload"
)

var (
	ErrUnknownKind     = errors.New("unknown block kind")
	ErrPayloadMismatch = errors.New("payload does not match block kind")
)

// Feed receives block lifecycle notifications from the host.
type Feed interface {
	OnInsert(ctx context.Context, kind payload.Kind, x, y, size int, data any, fresh bool) error
	OnRemove(ctx context.Context, kind payload.Kind, x, y int) error
	OnReset(ctx context.Context) error
}

// Router is a Feed forwarding each notification to the tracker owning its
// kind. Either tracker may be nil, in which case its kinds are dropped.
type Router struct {
	Canvases *CanvasTracker
	Displays *DisplayTracker
}

var _ Feed = (*Router)(nil)

func (r *Router) OnInsert(ctx context.Context, kind payload.Kind, x, y, size int, data any, fresh bool) error {
	switch kind {
	case payload.KindCanvas:
		c, ok := data.(*payload.Canvas)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, kind, data)
		}
		if r.Canvases == nil {
			return nil
		}
		return r.Canvases.Insert(ctx, x, y, size, c, fresh)
	case payload.KindDisplay:
		d, ok := data.(*payload.Display)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, kind, data)
		}
		if r.Displays == nil {
			return nil
		}
		return r.Displays.InsertDisplay(ctx, x, y, size, d, fresh)
	case payload.KindProcessor:
		p, ok := data.(*payload.Processor)
		if !ok {
			return fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, kind, data)
		}
		if r.Displays == nil {
			return nil
		}
		return r.Displays.InsertProcessor(ctx, x, y, size, p, fresh)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (r *Router) OnRemove(ctx context.Context, kind payload.Kind, x, y int) error {
	switch kind {
	case payload.KindCanvas:
		if r.Canvases == nil {
			return nil
		}
		return r.Canvases.Remove(ctx, x, y)
	case payload.KindDisplay:
		if r.Displays == nil {
			return nil
		}
		return r.Displays.RemoveDisplay(ctx, x, y)
	case payload.KindProcessor:
		if r.Displays == nil {
			return nil
		}
		return r.Displays.RemoveProcessor(ctx, x, y)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (r *Router) OnReset(ctx context.Context) error {
	var errs []error
	if r.Canvases != nil {
		errs = append(errs, r.Canvases.Reset(ctx))
	}
	if r.Displays != nil {
		errs = append(errs, r.Displays.Reset(ctx))
	}
	return errors.Join(errs...)
}
