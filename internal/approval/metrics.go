package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts approval requests.
	// Labels: instruction_type
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "approval",
			Name:      "requests_total",
			Help:      "Total number of approval requests sent to operators",
		},
		[]string{"instruction_type"},
	)

	// DecisionsTotal counts resolved approval requests.
	// Labels: outcome (approved, denied, timeout, reused)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "approval",
			Name:      "decisions_total",
			Help:      "Total number of approval decisions by outcome",
		},
		[]string{"outcome"},
	)

	// PendingRequests is the number of requests waiting for a decision.
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopatchd",
			Subsystem: "approval",
			Name:      "pending_requests",
			Help:      "Number of approval requests currently waiting for a decision",
		},
	)
)
