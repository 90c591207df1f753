package approval

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

// Automation event kinds recorded on the ticket.
const (
	EventRequest  = "telegram_approval_request"
	EventDecision = "telegram_approval"
)

// DefaultTimeout bounds how long a request waits for a decision.
const DefaultTimeout = 30 * time.Minute

var (
	// ErrUnknownRequest is returned when deciding a request that is not pending.
	ErrUnknownRequest = errors.New("unknown approval request")

	// ErrNotifyFailed is returned when no notifier could announce a request.
	ErrNotifyFailed = errors.New("approval request could not be delivered")
)

// Request asks an operator to sign off one instruction.
type Request struct {
	ID              string           `json:"id"`
	TicketID        string           `json:"ticketId"`
	InstructionType instruction.Type `json:"instructionType"`
	Description     string           `json:"description"`
	Command         string           `json:"command,omitempty"`
	SQL             string           `json:"sql,omitempty"`
	PolicyName      string           `json:"policyName,omitempty"`
	RequestedAt     time.Time        `json:"requestedAt"`
}

// NewRequest builds a request for a gated instruction.
func NewRequest(ticketID string, in instruction.Instruction) Request {
	r := Request{
		TicketID:        ticketID,
		InstructionType: in.Type(),
		Description:     instruction.Describe(in),
	}
	switch v := in.(type) {
	case *instruction.HetznerCommand:
		r.Command = v.Command
	case *instruction.SupabaseMigration:
		r.SQL = v.SQL
	case *instruction.SupabaseRLSPolicy:
		r.SQL = v.SQL
		r.PolicyName = v.PolicyName
	}
	return r
}

// Decision is an operator's answer to a Request.
type Decision struct {
	RequestID       string           `json:"requestId"`
	TicketID        string           `json:"ticketId"`
	InstructionType instruction.Type `json:"instructionType"`
	Approved        bool             `json:"approved"`
	By              string           `json:"by,omitempty"`
	TimedOut        bool             `json:"timedOut,omitempty"`
	DecidedAt       time.Time        `json:"decidedAt"`
}

// Gate blocks until req is decided. A timeout yields a denied Decision with
// TimedOut set and a nil error; errors are reserved for delivery failures
// and cancellation.
type Gate interface {
	Await(ctx context.Context, req Request) (Decision, error)
}

// Notifier announces requests and results to operators.
type Notifier interface {
	Name() string
	NotifyRequest(ctx context.Context, req Request) error
	NotifyResult(ctx context.Context, ticketID string, success bool, message string) error
}

// EventStore is the slice of ticket.Store the service records into.
type EventStore interface {
	RecordEvent(ctx context.Context, e *ticket.Event) error
	LatestEvent(ctx context.Context, ticketID, kind string) (*ticket.Event, error)
}

// RequestEvent is the automation event recorded when req is announced.
func RequestEvent(req Request) *ticket.Event {
	return &ticket.Event{
		TicketID: req.TicketID,
		Kind:     EventRequest,
		Actor:    "autopatchd",
		Payload: map[string]any{
			"requestId":       req.ID,
			"instructionType": string(req.InstructionType),
			"description":     req.Description,
			"command":         req.Command,
			"sql":             req.SQL,
			"policyName":      req.PolicyName,
			"timestamp":       req.RequestedAt.UTC().Format(time.RFC3339),
		},
	}
}

// DecisionEvent is the automation event recorded when req is decided.
func DecisionEvent(req Request, d Decision) *ticket.Event {
	return &ticket.Event{
		TicketID: req.TicketID,
		Kind:     EventDecision,
		Actor:    d.By,
		Payload: map[string]any{
			"requestId":       req.ID,
			"instructionType": string(req.InstructionType),
			"approved":        d.Approved,
			"timedOut":        d.TimedOut,
			"command":         req.Command,
			"sql":             req.SQL,
			"timestamp":       d.DecidedAt.UTC().Format(time.RFC3339),
		},
	}
}
