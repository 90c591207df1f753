package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
)

// Activities holds the side effects of ApprovalWorkflow.
type Activities struct {
	notifiers []approval.Notifier
	events    approval.EventStore
	logger    *zap.Logger
}

// NewActivities creates the approval activities. events may be nil.
func NewActivities(events approval.EventStore, logger *zap.Logger, notifiers ...approval.Notifier) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{notifiers: notifiers, events: events, logger: logger}
}

// AnnounceRequest records the request on the ticket and sends it to every
// notifier. It fails only when notifiers exist and all of them fail.
func (a *Activities) AnnounceRequest(ctx context.Context, req approval.Request) error {
	if a.events != nil {
		if err := a.events.RecordEvent(ctx, approval.RequestEvent(req)); err != nil {
			a.logger.Warn("recording approval request failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
		}
	}
	if len(a.notifiers) == 0 {
		return nil
	}

	var errs []error
	for _, n := range a.notifiers {
		if err := n.NotifyRequest(ctx, req); err != nil {
			a.logger.Warn("approval notification failed",
				zap.String("notifier", n.Name()),
				zap.String("ticket_id", req.TicketID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if len(errs) == len(a.notifiers) {
		activityErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("activity", "announce_request")))
		return notifyFailure(fmt.Errorf("%w: %w", approval.ErrNotifyFailed, errors.Join(errs...)))
	}
	return nil
}

// RecordDecision stores the decision event, then sends the outcome to the
// notifiers. Notification failures are logged only.
func (a *Activities) RecordDecision(ctx context.Context, req approval.Request, d approval.Decision) error {
	if a.events != nil {
		if err := a.events.RecordEvent(ctx, approval.DecisionEvent(req, d)); err != nil {
			activityErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("activity", "record_decision")))
			return fmt.Errorf("recording approval decision: %w", err)
		}
	}

	msg := fmt.Sprintf("%s denied by %s", req.InstructionType, d.By)
	if d.Approved {
		msg = fmt.Sprintf("%s approved by %s", req.InstructionType, d.By)
	}
	for _, n := range a.notifiers {
		if err := n.NotifyResult(ctx, req.TicketID, d.Approved, msg); err != nil {
			a.logger.Warn("decision notification failed", zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
	return nil
}
