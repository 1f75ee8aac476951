package visual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifierAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "canvasmod_classifier_api_duration_sec",
	Help: "Duration of remote image classification API calls, by provider",
}, []string{"provider"})

var classifierAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_classifier_api_count",
	Help: "Number of remote image classification API calls, by provider and HTTP status code",
}, []string{"provider", "status"})

var classifierFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "canvasmod_classifier_fallbacks",
	Help: "Number of classifications handed to the secondary classifier after a primary failure",
})

var ratingCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "canvasmod_classifier_ratings",
	Help: "Number of images rated by remote classifiers, by provider and rating",
}, []string{"provider", "rating"})
