package ticket

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusNew             Status = "new"
	StatusInvestigating   Status = "investigating"
	StatusWaitingCustomer Status = "waiting_customer"
	StatusResolved        Status = "resolved"
	StatusClosed          Status = "closed"
)

// Terminal reports whether no further dispatch may happen.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Priority of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AuthorType identifies who wrote a message.
type AuthorType string

const (
	AuthorCustomer AuthorType = "customer"
	AuthorSupport  AuthorType = "support"
	AuthorSystem   AuthorType = "system"
)

// Ticket is a customer support ticket.
type Ticket struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         Status            `json:"status"`
	Priority       Priority          `json:"priority"`
	Category       string            `json:"category,omitempty"`
	AssignedAgent  string            `json:"assignedAgent,omitempty"`
	SourceMetadata Metadata          `json:"sourceMetadata,omitempty"`
	EscalationPath []EscalationEntry `json:"escalationPath,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	// LatestMessage is the most recent customer message, filled in by the store.
	LatestMessage string `json:"latestMessage,omitempty"`
}

// Text returns title, description and latest customer message joined by
// newlines. Matchers classify tickets on this blob.
func (t *Ticket) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Title, t.Description, t.LatestMessage} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// Locale returns the customer locale recorded in source metadata.
func (t *Ticket) Locale() string {
	return t.SourceMetadata.Locale()
}

// EscalationEntry records one hand-off between agents.
type EscalationEntry struct {
	Agent     string    `json:"agent"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is an append-only entry in a ticket's communication log.
type Message struct {
	ID           string         `json:"id"`
	TicketID     string         `json:"ticketId"`
	AuthorType   AuthorType     `json:"authorType"`
	AuthorName   string         `json:"authorName,omitempty"`
	Body         string         `json:"message"`
	InternalOnly bool           `json:"internalOnly"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Kind returns the metadata "kind" tag of the message.
func (m *Message) Kind() string {
	k, _ := m.Metadata["kind"].(string)
	return k
}

// Event is an automation event attached to a ticket, such as an approval
// request or decision.
type Event struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticketId"`
	Kind      string         `json:"kind"`
	Actor     string         `json:"actor,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Update is a partial ticket mutation. Nil fields are left unchanged.
type Update struct {
	Status         *Status
	Priority       *Priority
	AssignedAgent  *string
	SourceMetadata Metadata
}

// Filter narrows List results.
type Filter struct {
	Statuses []Status
	Limit    int
}
