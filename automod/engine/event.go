package engine

import (
	"image"
	"log/slog"

	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/canvasmod/canvasmod/grid"
)

// Event is the outcome of processing one quiescent group.
type Event struct {
	Kind   payload.Kind
	Result *visual.Result
	Group  grid.Group[payload.Image]
	Image  image.Image
	// Author is the dominant author of the group, nil when no author holds
	// enough of the authorship records.
	Author *payload.Author
	// Footprint lists every block position an enforcement action would clear,
	// including processors linked into displays.
	Footprint []payload.Point
	// Cached is set when the result came from the dedup cache.
	Cached bool
}

func (e *Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.Int("x", e.Group.X),
		slog.Int("y", e.Group.Y),
		slog.Int("w", e.Group.W),
		slog.Int("h", e.Group.H),
		slog.Int("blocks", len(e.Group.Blocks)),
		slog.Bool("cached", e.Cached),
	}
	if e.Result != nil {
		attrs = append(attrs, slog.String("rating", e.Result.Rating.String()))
	}
	if e.Author != nil {
		attrs = append(attrs, slog.String("author", e.Author.String()))
	}
	return slog.GroupValue(attrs...)
}
