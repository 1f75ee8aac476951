package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var trackedBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "canvasmod_tracker_blocks",
	Help: "Number of blocks currently tracked, by kind",
}, []string{"kind"})

var dispatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_tracker_dispatched",
	Help: "Number of quiescent groups dispatched for processing",
}, []string{"kind"})

var scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "canvasmod_tracker_scan_duration_sec",
	Help: "Duration of tracker scheduling passes",
}, []string{"kind"})

var actorQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "canvasmod_tracker_actor_queue",
	Help: "Number of operations waiting on a tracker actor",
}, []string{"actor"})
