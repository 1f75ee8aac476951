package imagecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evictedEntries = promauto.NewCounter(prometheus.CounterOpts{
	Name: "canvasmod_imagecache_evicted",
	Help: "Number of image cache entries evicted",
})

var evictErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "canvasmod_imagecache_evict_errors",
	Help: "Number of failed image cache eviction passes",
})

var evictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "canvasmod_imagecache_evict_duration_sec",
	Help: "Duration of image cache eviction passes",
})
