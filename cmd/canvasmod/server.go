package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/canvasmod/canvasmod/automod/engine"
	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/render"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/canvasmod/canvasmod/events"
	"github.com/canvasmod/canvasmod/grid"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	dispatchQueueSize   = 1024
	feedReconnectPeriod = 5 * time.Second
)

type Config struct {
	Logger *slog.Logger

	Canvas  tracker.CanvasConfig
	Display tracker.DisplayConfig

	// Cache may be nil, in which case every group is classified.
	Cache           imagecache.ImageCache
	CleanupInterval time.Duration

	Classifier        visual.Classifier
	Sink              engine.Sink
	Workers           int
	ClassifyRateLimit float64
	ClassifyTimeout   time.Duration
	CacheTimeout      time.Duration

	// FeedURL is the websocket feed to subscribe to. Empty means events only
	// arrive over HTTP.
	FeedURL string
}

type Server struct {
	logger   *slog.Logger
	canvases *tracker.CanvasTracker
	displays *tracker.DisplayTracker
	router   *tracker.Router
	engine   *engine.Engine
	pool     *engine.Pool
	janitor  *imagecache.Janitor
	feedURL  string

	dispatches chan *tracker.Dispatch

	echo  *echo.Echo
	httpd *http.Server
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

// IngestResult is the response body of POST /events.
type IngestResult struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// GroupSummary describes one tracked group on GET /groups/:kind.
type GroupSummary struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	W      int `json:"w"`
	H      int `json:"h"`
	Blocks int `json:"blocks"`
}

// the prometheus middleware registers its collectors globally, so it can only
// be built once per process
var promMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("canvasmod")
})

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Classifier == nil {
		return nil, fmt.Errorf("a classifier is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("an event sink is required")
	}
	if config.ClassifyRateLimit < 0 {
		return nil, fmt.Errorf("classify rate limit must not be negative")
	}

	var limiter *rate.Limiter
	if config.ClassifyRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.ClassifyRateLimit), 1)
	}

	s := &Server{
		logger:     logger,
		feedURL:    config.FeedURL,
		dispatches: make(chan *tracker.Dispatch, dispatchQueueSize),
	}
	s.engine = &engine.Engine{
		Logger:          logger.With("system", "engine"),
		Renderer:        render.NewRenderer(),
		Cache:           config.Cache,
		Classifier:      config.Classifier,
		Limiter:         limiter,
		Sink:            config.Sink,
		CacheTimeout:    config.CacheTimeout,
		ClassifyTimeout: config.ClassifyTimeout,
	}
	s.pool = engine.NewPool(config.Workers, "dispatch", s.engine.ProcessDispatch, logger)
	s.canvases = tracker.NewCanvasTracker(config.Canvas, s.enqueue, logger)
	s.displays = tracker.NewDisplayTracker(config.Display, s.enqueue, logger)
	s.router = &tracker.Router{Canvases: s.canvases, Displays: s.displays}
	if config.Cache != nil {
		s.janitor = imagecache.NewJanitor(config.Cache, config.CleanupInterval, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger.With("system", "http")))
	e.Use(middleware.Recover())
	e.Use(promMiddleware())
	e.Use(otelecho.Middleware("canvasmod"))
	e.Use(middleware.BodyLimit("16M"))

	e.GET("/_health", s.HandleHealthCheck)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.POST("/events", s.HandleIngest)
	e.GET("/groups/:kind", s.HandleGroups)
	s.echo = e

	return s, nil
}

// enqueue is the tracker handler. It runs on a tracker actor, so it never
// blocks: when the queue is full the group is dropped, and it will be
// dispatched again the next time one of its blocks changes.
func (s *Server) enqueue(ctx context.Context, d *tracker.Dispatch) {
	select {
	case s.dispatches <- d:
		dispatchQueueDepth.Set(float64(len(s.dispatches)))
	default:
		dispatchesDropped.WithLabelValues(string(d.Kind)).Inc()
		s.logger.Warn("dispatch queue full, dropping group", "kind", d.Kind, "x", d.Group.X, "y", d.Group.Y, "blocks", d.Group.Len())
	}
}

// forward hands queued dispatches to the pool in arrival order, so work on
// the same artifact is processed in order.
func (s *Server) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-s.dispatches:
			dispatchQueueDepth.Set(float64(len(s.dispatches)))
			if err := s.pool.AddWork(ctx, d.Key(), d); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Run serves HTTP on bind and drives the trackers, the feed subscription and
// the cache janitor until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context, bind string) error {
	s.httpd = &http.Server{
		Handler:        s.echo,
		Addr:           bind,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return ignoreCanceled(s.canvases.Run(ctx)) })
	eg.Go(func() error { return ignoreCanceled(s.displays.Run(ctx)) })
	eg.Go(func() error { return s.forward(ctx) })
	if s.janitor != nil {
		eg.Go(func() error { return s.janitor.Run(ctx) })
	}
	if s.feedURL != "" {
		eg.Go(func() error { return s.RunFeed(ctx) })
	}
	eg.Go(func() error {
		s.logger.Info("starting server", "bind", bind, "version", versioninfo.Short())
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server shutting down unexpectedly: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		return s.Shutdown()
	})

	err := eg.Wait()
	s.pool.Shutdown()
	s.logger.Info("graceful shutdown complete")
	return err
}

func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpd.Shutdown(ctx)
}

// RunFeed subscribes to the websocket block feed, reconnecting until ctx is
// done. The host re-sends its full state on every connection, so tracked
// blocks are reset whenever a stream ends.
func (s *Server) RunFeed(ctx context.Context) error {
	logger := s.logger.With("system", "feed", "url", s.feedURL)
	header := http.Header{
		"User-Agent": []string{"canvasmod/" + versioninfo.Short()},
	}
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			feedReconnects.Inc()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(feedReconnectPeriod):
			}
		}

		con, _, err := websocket.DefaultDialer.DialContext(ctx, s.feedURL, header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("dialing block feed failed", "err", err)
			continue
		}
		logger.Info("subscribed to block feed")
		feedConnected.Set(1)
		err = events.HandleBlockStream(ctx, con, s.router, logger)
		feedConnected.Set(0)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("block feed disconnected", "err", err)
		if err := s.router.OnReset(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("resetting trackers: %w", err)
		}
	}
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "canvasmod"})
}

// HandleIngest applies block events from the request body, a single event or
// an array. Malformed JSON rejects the whole request; events the trackers
// refuse are counted and reported individually.
func (s *Server) HandleIngest(c echo.Context) error {
	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	evts, err := events.DecodeEvents(b)
	if err != nil {
		ingestEvents.WithLabelValues("malformed").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, span := tracer.Start(c.Request().Context(), "HandleIngest")
	defer span.End()
	span.SetAttributes(attribute.Int("events", len(evts)))

	var res IngestResult
	for _, evt := range evts {
		if err := events.Apply(ctx, s.router, evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ingestEvents.WithLabelValues("rejected").Inc()
			res.Rejected++
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		ingestEvents.WithLabelValues("accepted").Inc()
		res.Accepted++
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) HandleGroups(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		groups []grid.Group[payload.Image]
		err    error
	)
	switch payload.Kind(c.Param("kind")) {
	case payload.KindCanvas:
		groups, err = s.canvases.Groups(ctx)
	case payload.KindDisplay:
		groups, err = s.displays.Groups(ctx)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "unknown group kind")
	}
	if err != nil {
		return err
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupSummary{X: g.X, Y: g.Y, W: g.W, H: g.H, Blocks: g.Len()})
	}
	return c.JSON(http.StatusOK, out)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
