package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts model calls.
	// Labels: operation (plan, disambiguate), outcome (ok, error, invalid, declined)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of language model requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// RequestDuration tracks model call latency including retries.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopatchd",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Language model request latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)
)
