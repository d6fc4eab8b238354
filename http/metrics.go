package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportpredict",
		Name:      "predict_requests_total",
		Help:      "Prediction requests by outcome status and error kind.",
	}, []string{"status", "kind"})

	predictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sportpredict",
		Name:      "predict_duration_seconds",
		Help:      "Time spent handling a prediction request.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	predictionLabels = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportpredict",
		Name:      "predictions_total",
		Help:      "Successful predictions by label.",
	}, []string{"label"})

	predictCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sportpredict",
		Name:      "predict_cache_hits_total",
		Help:      "Predictions answered from the in-memory cache.",
	})
)
