package engine

import (
	"context"
	"errors"
	"image"
	"net/netip"
	"sync"
	"testing"

	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/render"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/automod/visual"
	"github.com/canvasmod/canvasmod/grid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = &payload.Author{UUID: "alice", Address: netip.MustParseAddr("10.0.0.1")}

// checkerCanvas is an 8x8 canvas whose tiles are never a single colour once
// rendered.
func checkerCanvas(author *payload.Author) *payload.Canvas {
	c := &payload.Canvas{Res: 8, Pixels: make([]uint32, 64), Author: author}
	for i := range c.Pixels {
		if (i%8+i/8)%2 == 0 {
			c.Pixels[i] = 0xffffff
		}
	}
	return c
}

func canvasGroup(canvases ...*payload.Canvas) grid.Group[payload.Image] {
	g := grid.Group[payload.Image]{X: 10, Y: 20, W: 2 * len(canvases), H: 2}
	for i, c := range canvases {
		g.Blocks = append(g.Blocks, grid.Block[payload.Image]{X: 10 + 2*i, Y: 20, Size: 2, Data: c})
	}
	return g
}

type collectSink struct {
	lk     sync.Mutex
	events []*Event
}

func (s *collectSink) Send(ctx context.Context, evt *Event) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *collectSink) Events() []*Event {
	s.lk.Lock()
	defer s.lk.Unlock()
	return append([]*Event(nil), s.events...)
}

type countingClassifier struct {
	calls  int
	result *visual.Result
	err    error
}

func (c *countingClassifier) Classify(ctx context.Context, img image.Image) (*visual.Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.result.Clone(), nil
}

type brokenCache struct {
	gets, puts int
}

func (b *brokenCache) Get(ctx context.Context, fp imagecache.Fingerprint) (*visual.Result, error) {
	b.gets++
	return nil, errors.New("cache down")
}

func (b *brokenCache) Put(ctx context.Context, fp imagecache.Fingerprint, result *visual.Result) error {
	b.puts++
	return errors.New("cache down")
}

func (b *brokenCache) Evict(ctx context.Context) (int, error) { return 0, nil }

func testEngine(cache imagecache.ImageCache, cl visual.Classifier, sink Sink) *Engine {
	return &Engine{
		Renderer:   render.NewRenderer(),
		Cache:      cache,
		Classifier: cl,
		Sink:       sink,
	}
}

func TestEngineClassifiesThenHitsCache(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	cache := imagecache.NewMemImageCache(imagecache.DefaultConfig())
	cl := &countingClassifier{result: &visual.Result{Rating: visual.Unsafe, Scores: map[visual.Category]float64{visual.Nudity: 0.9}}}
	sink := &collectSink{}
	eng := testEngine(cache, cl, sink)

	g := canvasGroup(checkerCanvas(alice), checkerCanvas(alice))
	require.NoError(eng.ProcessDispatch(ctx, tracker.NewDispatch(payload.KindCanvas, g, tracker.NewLive())))
	require.NoError(eng.ProcessDispatch(ctx, tracker.NewDispatch(payload.KindCanvas, g, tracker.NewLive())))

	assert.Equal(1, cl.calls)
	assert.Equal(1, cache.Len())
	evts := sink.Events()
	require.Len(evts, 2)
	assert.False(evts[0].Cached)
	assert.True(evts[1].Cached)
	for _, evt := range evts {
		assert.Equal(payload.KindCanvas, evt.Kind)
		assert.Equal(visual.Unsafe, evt.Result.Rating)
		assert.Same(alice, evt.Author)
		assert.Equal([]payload.Point{{X: 10, Y: 20}, {X: 12, Y: 20}}, evt.Footprint)
		assert.Equal(image.Rect(0, 0, 4*render.PixelsPerCell, 2*render.PixelsPerCell), evt.Image.Bounds())
	}
}

func TestEngineClassifierFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	errDown := errors.New("classifier down")
	cache := imagecache.NewMemImageCache(imagecache.DefaultConfig())
	sink := &collectSink{}
	eng := testEngine(cache, &countingClassifier{err: errDown}, sink)

	err := eng.ProcessDispatch(ctx, tracker.NewDispatch(payload.KindCanvas, canvasGroup(checkerCanvas(alice)), nil))
	assert.ErrorIs(err, errDown)
	assert.Empty(sink.Events())
	assert.Equal(0, cache.Len())
}

func TestEngineCacheFailureIsMiss(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cache := &brokenCache{}
	cl := &countingClassifier{result: &visual.Result{Rating: visual.Warning}}
	sink := &collectSink{}
	eng := testEngine(cache, cl, sink)

	assert.NoError(eng.ProcessDispatch(ctx, tracker.NewDispatch(payload.KindCanvas, canvasGroup(checkerCanvas(nil)), nil)))
	assert.Equal(1, cache.gets)
	assert.Equal(1, cache.puts)
	assert.Equal(1, cl.calls)
	if assert.Len(sink.Events(), 1) {
		assert.Equal(visual.Warning, sink.Events()[0].Result.Rating)
		assert.Nil(sink.Events()[0].Author)
	}
}

func TestEngineSkipsCacheForBlankImages(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cache := &brokenCache{}
	sink := &collectSink{}
	eng := testEngine(cache, &countingClassifier{result: visual.Empty()}, sink)

	blank := &payload.Canvas{Res: 8}
	assert.NoError(eng.ProcessDispatch(ctx, tracker.NewDispatch(payload.KindCanvas, canvasGroup(blank), nil)))
	assert.Equal(0, cache.gets)
	assert.Equal(0, cache.puts)
	assert.Len(sink.Events(), 1)
}

func TestEngineDiscardsStaleResults(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	live := tracker.NewLive()
	g := canvasGroup(checkerCanvas(alice))
	live.Touch(g.Blocks[0].Key())

	cache := imagecache.NewMemImageCache(imagecache.DefaultConfig())
	sink := &collectSink{}
	cl := visual.ClassifierFunc(func(ctx context.Context, img image.Image) (*visual.Result, error) {
		// the block is edited while the classifier runs
		live.Touch(g.Blocks[0].Key())
		return &visual.Result{Rating: visual.Unsafe}, nil
	})
	eng := testEngine(cache, cl, sink)

	d := tracker.NewDispatch(payload.KindCanvas, g, live)
	assert.True(d.Current())
	assert.NoError(eng.ProcessDispatch(ctx, d))
	assert.False(d.Current())
	assert.Empty(sink.Events())
	// the verdict is still valid for the image itself
	assert.Equal(1, cache.Len())
}

func TestEngineRecoversPanics(t *testing.T) {
	assert := assert.New(t)

	cl := visual.ClassifierFunc(func(ctx context.Context, img image.Image) (*visual.Result, error) {
		panic("boom")
	})
	eng := testEngine(nil, cl, &collectSink{})
	err := eng.ProcessDispatch(context.Background(), tracker.NewDispatch(payload.KindCanvas, canvasGroup(checkerCanvas(nil)), nil))
	assert.ErrorContains(err, "boom")
}

func TestSinks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	a, b := &collectSink{}, &collectSink{}
	errFail := errors.New("fail")
	failing := SinkFunc(func(ctx context.Context, evt *Event) error { return errFail })

	multi := MultiSink{a, failing, RatingFilter{Min: visual.Unsafe, Next: b}, LogSink{}}

	assert.ErrorIs(multi.Send(ctx, &Event{Kind: payload.KindCanvas, Result: &visual.Result{Rating: visual.Warning}}), errFail)
	assert.ErrorIs(multi.Send(ctx, &Event{Kind: payload.KindDisplay, Result: &visual.Result{Rating: visual.Unsafe}, Author: alice}), errFail)
	assert.Len(a.Events(), 2)
	if assert.Len(b.Events(), 1) {
		assert.Equal(payload.KindDisplay, b.Events()[0].Kind)
	}
}
