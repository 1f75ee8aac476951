package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/render"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/automod/visual"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// runtime for classifying quiescent groups and emitting moderation events.
//
// Renderer, Classifier and Sink must be set. Cache and Limiter are optional.
type Engine struct {
	Logger     *slog.Logger
	Renderer   *render.Renderer
	Cache      imagecache.ImageCache
	Classifier visual.Classifier
	Limiter    *rate.Limiter
	Sink       Sink

	CacheTimeout    time.Duration
	ClassifyTimeout time.Duration
}

const (
	DefaultCacheTimeout    = 5 * time.Second
	DefaultClassifyTimeout = 30 * time.Second
)

// ProcessDispatch runs one dispatched group through the pipeline. Cache
// failures are logged and treated as misses. A classifier failure ends
// processing with nothing stored and no event.
func (eng *Engine) ProcessDispatch(ctx context.Context, d *tracker.Dispatch) (err error) {
	kind := string(d.Kind)
	logger := eng.logger().With("kind", kind, "x", d.Group.X, "y", d.Group.Y)

	// similar to an HTTP server, we want to recover any panics from pipeline execution
	defer func() {
		if r := recover(); r != nil {
			logger.Error("canvasmod dispatch execution exception", "err", r)
			eventErrorCount.WithLabelValues(kind).Inc()
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "ProcessDispatch", trace.WithAttributes(
		attribute.String("kind", kind),
		attribute.Int("blocks", len(d.Group.Blocks)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	eventProcessCount.WithLabelValues(kind).Inc()

	logger.Debug("processing group", "blocks", len(d.Group.Blocks))
	img := eng.Renderer.Render(d.Group)
	fp := imagecache.Compute(img)

	result, cached := eng.lookup(ctx, logger, fp)
	span.SetAttributes(attribute.Bool("cached", cached))
	if result == nil {
		result, err = eng.classify(ctx, img)
		if err != nil {
			eventErrorCount.WithLabelValues(kind).Inc()
			return fmt.Errorf("classifying %s group at (%d, %d): %w", kind, d.Group.X, d.Group.Y, err)
		}
		eng.store(ctx, logger, fp, result)
	}
	resultCount.WithLabelValues(kind, result.Rating.String(), fmt.Sprint(cached)).Inc()

	if !d.Current() {
		logger.Debug("group changed while processing, discarding result", "rating", result.Rating)
		staleCount.WithLabelValues(kind).Inc()
		return nil
	}

	evt := &Event{
		Kind:      d.Kind,
		Result:    result,
		Group:     d.Group,
		Image:     img,
		Author:    payload.DominantAuthor(payload.Images(d.Group)),
		Footprint: payload.Footprint(d.Group),
		Cached:    cached,
	}
	if err := eng.Sink.Send(ctx, evt); err != nil {
		sinkErrorCount.WithLabelValues(kind).Inc()
		return fmt.Errorf("sending event: %w", err)
	}
	return nil
}

func (eng *Engine) lookup(ctx context.Context, logger *slog.Logger, fp imagecache.Fingerprint) (*visual.Result, bool) {
	if eng.Cache == nil || len(fp) == 0 {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, durationOr(eng.CacheTimeout, DefaultCacheTimeout))
	defer cancel()
	res, err := eng.Cache.Get(ctx, fp)
	if err != nil {
		logger.Error("failed to get cached result", "err", err)
		cacheErrorCount.WithLabelValues("get").Inc()
		return nil, false
	}
	if res == nil {
		logger.Debug("cache miss", "tiles", len(fp))
		return nil, false
	}
	logger.Debug("cache hit", "rating", res.Rating)
	return res, true
}

func (eng *Engine) classify(ctx context.Context, img image.Image) (*visual.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, durationOr(eng.ClassifyTimeout, DefaultClassifyTimeout))
	defer cancel()
	if eng.Limiter != nil {
		if err := eng.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for classifier rate limit: %w", err)
		}
	}
	res, err := eng.Classifier.Classify(ctx, img)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("classifier returned no result")
	}
	return res, nil
}

func (eng *Engine) store(ctx context.Context, logger *slog.Logger, fp imagecache.Fingerprint, res *visual.Result) {
	if eng.Cache == nil || len(fp) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, durationOr(eng.CacheTimeout, DefaultCacheTimeout))
	defer cancel()
	if err := eng.Cache.Put(ctx, fp, res); err != nil {
		logger.Error("failed to store result", "err", err)
		cacheErrorCount.WithLabelValues("put").Inc()
	}
}

func (eng *Engine) logger() *slog.Logger {
	if eng.Logger == nil {
		return slog.Default()
	}
	return eng.Logger
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
