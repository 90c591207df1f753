package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
)

// Lifecycle events published for each ticket.
const (
	EventAutopatchStarted  = "autopatch.started"
	EventAutopatchFinished = "autopatch.finished"
	EventErrorHandler      = "error_handler"
	EventEscalated         = "escalated"
	EventAssigned          = "assigned"
)

// Publisher broadcasts ticket lifecycle events. Failures never affect the
// dispatch outcome.
type Publisher interface {
	Publish(ctx context.Context, ticketID, event string, payload map[string]any) error
}

// NATSPublisher publishes lifecycle events on
//
//	autopatch.tickets.{ticket_id}.{event}
type NATSPublisher struct {
	nc *nats.Conn
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a publisher over an existing connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// TicketSubject returns the subject for a ticket event.
func TicketSubject(ticketID, event string) string {
	return fmt.Sprintf("autopatch.tickets.%s.%s", approval.SubjectToken(ticketID), event)
}

type lifecycleMessage struct {
	TicketID  string         `json:"ticketId"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (p *NATSPublisher) Publish(_ context.Context, ticketID, event string, payload map[string]any) error {
	data, err := json.Marshal(lifecycleMessage{
		TicketID:  ticketID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding lifecycle event: %w", err)
	}
	if err := p.nc.Publish(TicketSubject(ticketID, event), data); err != nil {
		return fmt.Errorf("publishing lifecycle event: %w", err)
	}
	return nil
}
