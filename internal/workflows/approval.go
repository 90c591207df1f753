// Package workflows runs operator approvals as Temporal workflows so pending
// requests survive daemon restarts.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
)

const (
	// TaskQueue is the default queue approval workflows run on.
	TaskQueue = "autopatch-approvals"

	// SignalDecision carries a DecisionSignal into a running approval.
	SignalDecision = "approval-decision"

	// QueryRequest returns the approval.Request a workflow is waiting on.
	QueryRequest = "approval-request"
)

// ApprovalInput starts an ApprovalWorkflow.
type ApprovalInput struct {
	Request approval.Request
	Timeout time.Duration
}

// DecisionSignal is an operator's answer.
type DecisionSignal struct {
	Approved bool
	By       string
}

// ApprovalWorkflow announces a request and waits for a decision signal.
// When the timer fires first the request is denied with TimedOut set.
func ApprovalWorkflow(ctx workflow.Context, in ApprovalInput) (approval.Decision, error) {
	logger := workflow.GetLogger(ctx)

	req := in.Request
	if req.ID == "" {
		req.ID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = workflow.Now(ctx)
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = approval.DefaultTimeout
	}

	if err := workflow.SetQueryHandler(ctx, QueryRequest, func() (approval.Request, error) {
		return req, nil
	}); err != nil {
		return approval.Decision{}, NewWorkflowError("register_query", ErrorSeverityCritical, err)
	}

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeNotifyFailed},
		},
	})

	var acts *Activities
	if err := workflow.ExecuteActivity(actx, acts.AnnounceRequest, req).Get(ctx, nil); err != nil {
		return approval.Decision{}, NewWorkflowError("announce_request", ErrorSeverityCritical, err)
	}
	logger.Info("Approval requested",
		"ticket_id", req.TicketID,
		"instruction_type", string(req.InstructionType))

	decision := approval.Decision{
		RequestID:       req.ID,
		TicketID:        req.TicketID,
		InstructionType: req.InstructionType,
	}

	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	timer := workflow.NewTimer(timerCtx, timeout)

	sel := workflow.NewSelector(ctx)
	sel.AddReceive(workflow.GetSignalChannel(ctx, SignalDecision), func(c workflow.ReceiveChannel, _ bool) {
		var sig DecisionSignal
		c.Receive(ctx, &sig)
		cancelTimer()
		decision.Approved = sig.Approved
		decision.By = sig.By
	})
	sel.AddFuture(timer, func(f workflow.Future) {
		if err := f.Get(ctx, nil); err == nil {
			decision.Approved = false
			decision.By = "timeout"
			decision.TimedOut = true
		}
	})
	sel.Select(ctx)
	decision.DecidedAt = workflow.Now(ctx)

	if err := workflow.ExecuteActivity(actx, acts.RecordDecision, req, decision).Get(ctx, nil); err != nil {
		logger.Warn("Recording approval decision failed (non-fatal)",
			"ticket_id", req.TicketID,
			"error", NewWorkflowError("record_decision", ErrorSeverityLow, err))
	}

	logger.Info("Approval decided",
		"ticket_id", req.TicketID,
		"approved", decision.Approved,
		"timed_out", decision.TimedOut)
	return decision, nil
}
