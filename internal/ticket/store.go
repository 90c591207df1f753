package ticket

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a ticket does not exist.
var ErrNotFound = errors.New("ticket not found")

// Store persists tickets, messages and automation events.
type Store interface {
	// Create inserts a new ticket.
	Create(ctx context.Context, t *Ticket) error

	// Get returns a ticket with its latest customer message.
	Get(ctx context.Context, id string) (*Ticket, error)

	// List returns tickets matching filter, oldest first.
	List(ctx context.Context, filter Filter) ([]*Ticket, error)

	// Update applies a partial mutation and bumps updated_at.
	Update(ctx context.Context, id string, u Update) error

	// AppendEscalation appends an entry to the escalation path.
	AppendEscalation(ctx context.Context, id string, e EscalationEntry) error

	// AppendMessage appends a message to the ticket log.
	AppendMessage(ctx context.Context, m *Message) error

	// Messages returns the ticket log in creation order.
	Messages(ctx context.Context, ticketID string) ([]*Message, error)

	// HasRecentMessage reports whether an identical message by author was
	// appended at or after since.
	HasRecentMessage(ctx context.Context, ticketID string, author AuthorType, body string, since time.Time) (bool, error)

	// RecordEvent stores an automation event.
	RecordEvent(ctx context.Context, e *Event) error

	// LatestEvent returns the newest event of kind for the ticket, or nil.
	LatestEvent(ctx context.Context, ticketID, kind string) (*Event, error)

	// Close releases resources.
	Close() error
}
