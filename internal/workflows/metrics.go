package workflows

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/autopatchd/internal/workflows"

var (
	approvalWorkflowCounter metric.Int64Counter
	approvalWaitDuration    metric.Float64Histogram
	approvalTimeoutCounter  metric.Int64Counter
	activityErrorCounter    metric.Int64Counter
)

// initMetrics creates the workflow instruments. Called once from init.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	approvalWorkflowCounter, err = meter.Int64Counter(
		"autopatchd.workflows.approval.executions",
		metric.WithDescription("Approval workflows started through the Temporal gate"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create approval workflow counter: %v", err))
	}

	approvalWaitDuration, err = meter.Float64Histogram(
		"autopatchd.workflows.approval.wait",
		metric.WithDescription("Time callers spent waiting for an approval decision"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create approval wait histogram: %v", err))
	}

	approvalTimeoutCounter, err = meter.Int64Counter(
		"autopatchd.workflows.approval.timeouts",
		metric.WithDescription("Approval requests denied because no decision arrived in time"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create approval timeout counter: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"autopatchd.workflows.activity.errors",
		metric.WithDescription("Number of activity execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}
}

func init() {
	initMetrics()
}
