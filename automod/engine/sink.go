package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/canvasmod/canvasmod/automod/visual"
)

// Interface for a type that receives moderation events
type Sink interface {
	Send(ctx context.Context, evt *Event) error
}

type SinkFunc func(ctx context.Context, evt *Event) error

func (f SinkFunc) Send(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// LogSink writes every event to a logger. Unsafe results log at WARN.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, evt *Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if evt.Result != nil && evt.Result.Rating == visual.Unsafe {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "group classified", "event", evt)
	return nil
}

// MultiSink sends every event to all sinks, in order, even when some fail.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, evt *Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RatingFilter forwards only events rated at least Min.
type RatingFilter struct {
	Min  visual.Rating
	Next Sink
}

func (f RatingFilter) Send(ctx context.Context, evt *Event) error {
	if evt.Result == nil || evt.Result.Rating < f.Min {
		return nil
	}
	return f.Next.Send(ctx, evt)
}
