package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsFromStreamCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_feed_events_received_total",
	Help: "Total number of block events received from the stream",
}, []string{"remote_addr"})

var bytesFromStreamCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_feed_bytes_total",
	Help: "Total bytes received from the stream",
}, []string{"remote_addr"})

var eventsRejectedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_feed_events_rejected_total",
	Help: "Total number of block events the trackers rejected",
}, []string{"remote_addr"})
