package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
)

// workflowClient is the part of client.Client the gate uses.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

// GateConfig configures a TemporalGate.
type GateConfig struct {
	TaskQueue string
	Timeout   time.Duration
}

// TemporalGate is an approval.Gate backed by ApprovalWorkflow. Requests for
// the same ticket and instruction type map to one workflow ID, so concurrent
// callers attach to the running workflow.
type TemporalGate struct {
	client    workflowClient
	taskQueue string
	timeout   time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
}

var (
	_ approval.Gate    = (*TemporalGate)(nil)
	_ approval.Decider = (*TemporalGate)(nil)
)

// NewTemporalGate creates a gate that starts workflows through c.
func NewTemporalGate(c workflowClient, cfg GateConfig, logger *zap.Logger) *TemporalGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = TaskQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = approval.DefaultTimeout
	}
	return &TemporalGate{
		client:    c,
		taskQueue: cfg.TaskQueue,
		timeout:   cfg.Timeout,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}
}

// WorkflowID is the approval workflow ID, and request ID, for a ticket and
// instruction type.
func WorkflowID(ticketID string, t instruction.Type) string {
	return fmt.Sprintf("autopatch-approval-%s-%s", ticketID, t)
}

// Await starts (or joins) the approval workflow for req and blocks until it
// returns. Cancelling ctx stops the wait; the workflow keeps running until a
// decision or its timer.
func (g *TemporalGate) Await(ctx context.Context, req approval.Request) (approval.Decision, error) {
	ctx, span := g.tracer.Start(ctx, "workflows.approval_await",
		trace.WithAttributes(
			attribute.String("ticket.id", req.TicketID),
			attribute.String("instruction.type", string(req.InstructionType)),
		))
	defer span.End()

	req.ID = WorkflowID(req.TicketID, req.InstructionType)
	start := time.Now()

	run, err := g.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: g.taskQueue,
	}, ApprovalWorkflow, ApprovalInput{Request: req, Timeout: g.timeout})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		return approval.Decision{}, fmt.Errorf("starting approval workflow: %w", err)
	}
	approvalWorkflowCounter.Add(ctx, 1)
	g.logger.Info("approval workflow running",
		zap.String("ticket_id", req.TicketID),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()))

	var d approval.Decision
	if err := run.Get(ctx, &d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "wait failed")
		if ctx.Err() != nil {
			return approval.Decision{RequestID: req.ID, TicketID: req.TicketID, InstructionType: req.InstructionType}, ctx.Err()
		}
		if IsNotifyFailure(err) {
			return approval.Decision{}, fmt.Errorf("%w: %w", approval.ErrNotifyFailed, err)
		}
		return approval.Decision{}, fmt.Errorf("awaiting approval workflow: %w", err)
	}

	approvalWaitDuration.Record(ctx, time.Since(start).Seconds())
	if d.TimedOut {
		approvalTimeoutCounter.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Bool("approval.approved", d.Approved))
	return d, nil
}

// Decide signals the workflow behind requestID.
func (g *TemporalGate) Decide(ctx context.Context, requestID string, approved bool, by string) (approval.Decision, error) {
	req, err := g.Request(ctx, requestID)
	if err != nil {
		return approval.Decision{}, err
	}

	err = g.client.SignalWorkflow(ctx, requestID, "", SignalDecision, DecisionSignal{Approved: approved, By: by})
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return approval.Decision{}, fmt.Errorf("%w: %s", approval.ErrUnknownRequest, requestID)
		}
		return approval.Decision{}, fmt.Errorf("signalling approval workflow: %w", err)
	}

	g.logger.Info("approval decision signalled",
		zap.String("ticket_id", req.TicketID),
		zap.String("request_id", requestID),
		zap.Bool("approved", approved),
		zap.String("by", by))
	return approval.Decision{
		RequestID:       requestID,
		TicketID:        req.TicketID,
		InstructionType: req.InstructionType,
		Approved:        approved,
		By:              by,
		DecidedAt:       time.Now(),
	}, nil
}

// Request returns the request a workflow is waiting on.
func (g *TemporalGate) Request(ctx context.Context, requestID string) (approval.Request, error) {
	val, err := g.client.QueryWorkflow(ctx, requestID, "", QueryRequest)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return approval.Request{}, fmt.Errorf("%w: %s", approval.ErrUnknownRequest, requestID)
		}
		return approval.Request{}, fmt.Errorf("querying approval workflow: %w", err)
	}
	var req approval.Request
	if err := val.Get(&req); err != nil {
		return approval.Request{}, fmt.Errorf("decoding approval request: %w", err)
	}
	return req, nil
}

// NewWorker creates a worker on taskQueue with the approval workflow and
// activities registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, acts)
	return w
}

// Register adds ApprovalWorkflow and acts to r.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(ApprovalWorkflow)
	r.RegisterActivity(acts)
}
