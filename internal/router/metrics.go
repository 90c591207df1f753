package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts dispatch outcomes.
	// Labels: outcome (autopatch, error_handler, assigned, skipped, busy, failed)
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "router",
			Name:      "dispatch_total",
			Help:      "Total number of ticket dispatches by outcome",
		},
		[]string{"outcome"},
	)

	// AutopatchTotal counts autopatch attempts.
	// Labels: status (applied, planned)
	AutopatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "router",
			Name:      "autopatch_total",
			Help:      "Total number of autopatch attempts by resulting status",
		},
		[]string{"status"},
	)

	// EscalationsTotal counts tickets handed to the escalation agent.
	EscalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "router",
			Name:      "escalations_total",
			Help:      "Total number of tickets escalated after repeated failures",
		},
	)

	// CandidateCacheTotal counts candidate cache lookups.
	// Labels: result (hit, miss)
	CandidateCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "router",
			Name:      "candidate_cache_total",
			Help:      "Total number of candidate cache lookups",
		},
		[]string{"result"},
	)

	// PollTickets is the number of tickets seen by the last poll cycle.
	PollTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopatchd",
			Subsystem: "router",
			Name:      "poll_tickets",
			Help:      "Number of open tickets seen by the last poll cycle",
		},
	)
)
