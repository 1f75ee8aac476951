package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("canvasmod")

var dispatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatches_dropped",
	Help: "Number of quiescent groups dropped because the processing queue was full",
}, []string{"kind"})

var dispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "canvasmod_dispatch_queue_depth",
	Help: "Number of quiescent groups waiting to be handed to the worker pool",
})

var feedConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "canvasmod_feed_connected",
	Help: "Whether the block feed websocket is currently connected",
})

var feedReconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "canvasmod_feed_reconnects",
	Help: "Number of block feed connection attempts after the first",
})

var ingestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_ingest_events",
	Help: "Number of block events received over HTTP, by outcome",
}, []string{"outcome"})
