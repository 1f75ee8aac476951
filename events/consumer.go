package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/canvasmod/canvasmod/automod/tracker"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

type instrumentedReader struct {
	r            io.Reader
	bytesCounter prometheus.Counter
}

func (sr *instrumentedReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	sr.bytesCounter.Add(float64(n))
	return n, err
}

// HandleBlockStream reads JSON block events from the connection and applies
// them to the feed, until the connection fails or ctx is done. Each text
// message holds one event or an array of events. Events the feed rejects are
// logged and skipped; malformed messages end the stream.
func HandleBlockStream(ctx context.Context, con *websocket.Conn, feed tracker.Feed, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if logger == nil {
		logger = slog.Default()
	}
	remoteAddr := con.RemoteAddr().String()
	logger = logger.With("system", "block-stream", "remote", remoteAddr)

	go func() {
		t := time.NewTicker(time.Second * 30)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if err := con.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second*10)); err != nil {
					logger.Warn("failed to ping", "err", err)
				}
			case <-ctx.Done():
				con.Close()
				return
			}
		}
	}()

	lastSeq := int64(-1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		mt, rawReader, err := con.NextReader()
		if err != nil {
			return err
		}

		switch mt {
		default:
			return fmt.Errorf("expected text message from block stream")
		case websocket.TextMessage:
			// ok
		}

		r := &instrumentedReader{
			r:            rawReader,
			bytesCounter: bytesFromStreamCounter.WithLabelValues(remoteAddr),
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}
		evts, err := DecodeEvents(b)
		if err != nil {
			return err
		}

		for _, evt := range evts {
			eventsFromStreamCounter.WithLabelValues(remoteAddr).Inc()
			if evt.Seq != 0 {
				if evt.Seq < lastSeq {
					logger.Error("got events out of order from stream", "seq", evt.Seq, "prev", lastSeq)
				}
				lastSeq = evt.Seq
			}
			if err := Apply(ctx, feed, evt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				eventsRejectedCounter.WithLabelValues(remoteAddr).Inc()
				logger.Warn("block event rejected", "err", err, "op", evt.Op, "kind", evt.Kind, "x", evt.X, "y", evt.Y)
			}
		}
	}
}
