package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("canvasmod/engine")

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "canvasmod_dispatch_duration_sec",
	Help: "Total duration of dispatched group processing",
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatch_processed",
	Help: "Number of dispatched groups processed",
}, []string{"kind"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatch_errors",
	Help: "Number of dispatched groups which failed processing",
}, []string{"kind"})

var resultCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatch_results",
	Help: "Number of classification results, by rating and whether the dedup cache answered",
}, []string{"kind", "rating", "cached"})

var staleCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatch_stale",
	Help: "Number of results discarded because the group changed during processing",
}, []string{"kind"})

var sinkErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_sink_errors",
	Help: "Number of events the sink failed to handle",
}, []string{"kind"})

var cacheErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_dispatch_cache_errors",
	Help: "Number of dedup cache failures seen by the pipeline, by operation",
}, []string{"op"})

var workItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_pool_work_items_added_total",
	Help: "Total number of work items added to the worker pool",
}, []string{"pool"})

var workItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_pool_work_items_processed_total",
	Help: "Total number of work items processed by the worker pool",
}, []string{"pool"})

var workItemsActive = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_pool_work_items_active_total",
	Help: "Total number of work items passed into a worker",
}, []string{"pool"})

var workersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "canvasmod_pool_workers_active",
	Help: "Number of workers currently active",
}, []string{"pool"})
