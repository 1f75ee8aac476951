package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/canvasmod/canvasmod/automod/engine"
	"github.com/canvasmod/canvasmod/automod/imagecache"
	"github.com/canvasmod/canvasmod/automod/payload"
	"github.com/canvasmod/canvasmod/automod/tracker"
	"github.com/canvasmod/canvasmod/automod/visual"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectSink struct {
	lk     sync.Mutex
	events []*engine.Event
}

func (s *collectSink) Send(ctx context.Context, evt *engine.Event) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *collectSink) Len() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return len(s.events)
}

func (s *collectSink) First() *engine.Event {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.events[0]
}

// testServer builds a server with its trackers running. When forward is set,
// dispatches also flow to the worker pool.
func testServer(t *testing.T, window time.Duration, forward bool) (*Server, *collectSink) {
	t.Helper()
	sink := &collectSink{}
	srv, err := NewServer(Config{
		Canvas:     tracker.CanvasConfig{Window: window, MinimumGroupSize: 1},
		Display:    tracker.DisplayConfig{Window: window, SearchRadius: 10, MinimumProcessorCount: 1},
		Cache:      imagecache.NewMemImageCache(imagecache.DefaultConfig()),
		Classifier: visual.NoneClassifier{},
		Sink:       sink,
		Workers:    2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); srv.canvases.Run(ctx) }()
	go func() { defer wg.Done(); srv.displays.Run(ctx) }()
	if forward {
		wg.Add(1)
		go func() { defer wg.Done(); srv.forward(ctx) }()
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		srv.pool.Shutdown()
	})
	return srv, sink
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func canvasEvent(x, y int, fresh bool) string {
	return fmt.Sprintf(`{"op":"insert","kind":"canvas","x":%d,"y":%d,"size":2,"fresh":%t,"canvas":{"resolution":2,"pixels":[16711680,65280,255,16777215],"author":{"uuid":"alice","address":"10.0.0.1"}}}`, x, y, fresh)
}

func TestNewServerValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewServer(Config{Sink: &collectSink{}})
	assert.Error(err)

	_, err = NewServer(Config{Classifier: visual.NoneClassifier{}})
	assert.Error(err)

	_, err = NewServer(Config{Classifier: visual.NoneClassifier{}, Sink: &collectSink{}, ClassifyRateLimit: -1})
	assert.Error(err)
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t, time.Minute, false)

	rec := doRequest(srv, http.MethodGet, "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)

	var status GenericStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal("ok", status.Status)
	assert.Equal("canvasmod", status.Daemon)
}

func TestIngestAndGroups(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, _ := testServer(t, time.Minute, false)

	body := "[" + strings.Join([]string{
		canvasEvent(0, 0, true),
		canvasEvent(2, 0, true),
		canvasEvent(0, 2, true),
		`{"op":"insert","kind":"banner","x":9,"y":9,"size":1}`,
		canvasEvent(50, 50, false),
	}, ",") + "]"

	rec := doRequest(srv, http.MethodPost, "/events", body)
	require.Equal(http.StatusOK, rec.Code)
	var res IngestResult
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(4, res.Accepted)
	assert.Equal(1, res.Rejected)
	assert.Len(res.Errors, 1)

	rec = doRequest(srv, http.MethodGet, "/groups/canvas", "")
	require.Equal(http.StatusOK, rec.Code)
	var groups []GroupSummary
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(groups, 2)
	blocks := map[int]GroupSummary{}
	for _, g := range groups {
		blocks[g.Blocks] = g
	}
	assert.Equal(GroupSummary{X: 0, Y: 0, W: 4, H: 4, Blocks: 3}, blocks[3])
	assert.Equal(GroupSummary{X: 50, Y: 50, W: 2, H: 2, Blocks: 1}, blocks[1])

	rec = doRequest(srv, http.MethodGet, "/groups/display", "")
	require.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`[]`, rec.Body.String())

	// a reset clears everything
	rec = doRequest(srv, http.MethodPost, "/events", `{"op":"reset"}`)
	require.Equal(http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodGet, "/groups/canvas", "")
	assert.JSONEq(`[]`, rec.Body.String())
}

func TestIngestMalformed(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t, time.Minute, false)

	rec := doRequest(srv, http.MethodPost, "/events", `{"op":`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/events", `[null]`)
	assert.Equal(http.StatusBadRequest, rec.Code)

	// oversized blocks are rejected per event
	rec = doRequest(srv, http.MethodPost, "/events", `{"op":"insert","kind":"canvas","size":3000,"canvas":{"resolution":12}}`)
	assert.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"accepted":0,"rejected":1,"errors":["invalid block event: size must be in [1, 16], got 3000"]}`, rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/groups/processor", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestIngestToEvent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, sink := testServer(t, 50*time.Millisecond, true)

	rec := doRequest(srv, http.MethodPost, "/events", "["+canvasEvent(4, 4, true)+","+canvasEvent(6, 4, true)+"]")
	require.Equal(http.StatusOK, rec.Code)

	require.Eventually(func() bool { return sink.Len() > 0 }, 5*time.Second, 10*time.Millisecond)
	evt := sink.First()
	assert.Equal(payload.KindCanvas, evt.Kind)
	assert.Equal(visual.Safe, evt.Result.Rating)
	assert.Equal(2, evt.Group.Len())
	require.NotNil(evt.Author)
	assert.Equal("alice", evt.Author.UUID)
	assert.False(evt.Cached)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	assert := assert.New(t)
	srv, err := NewServer(Config{Classifier: visual.NoneClassifier{}, Sink: &collectSink{}})
	assert.NoError(err)
	defer srv.pool.Shutdown()

	srv.dispatches = make(chan *tracker.Dispatch, 1)
	d := &tracker.Dispatch{Kind: payload.KindCanvas}
	srv.enqueue(context.Background(), d)
	srv.enqueue(context.Background(), d)
	assert.Len(srv.dispatches, 1)
}
