package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts Execute calls.
	// Labels: outcome (applied, no_changes, remote_only, write_error, approval_denied, remote_error, error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "executor",
			Name:      "runs_total",
			Help:      "Total number of instruction batches by outcome",
		},
		[]string{"outcome"},
	)

	// InstructionsTotal counts applied instructions.
	// Labels: type, status (ok, failed)
	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "executor",
			Name:      "instructions_total",
			Help:      "Total number of instructions applied by type and status",
		},
		[]string{"type", "status"},
	)

	// RollbacksTotal counts batches whose file changes were rolled back.
	RollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "executor",
			Name:      "rollbacks_total",
			Help:      "Total number of batches rolled back after a write failure",
		},
	)

	// StepFailuresTotal counts failed verification steps.
	// Labels: step (lint, build, restart)
	StepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopatchd",
			Subsystem: "executor",
			Name:      "step_failures_total",
			Help:      "Total number of failed lint, build and restart steps",
		},
		[]string{"step"},
	)

	// StepDuration tracks lint, build and restart durations.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "autopatchd",
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Duration of lint, build and restart steps",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"step"},
	)
)
