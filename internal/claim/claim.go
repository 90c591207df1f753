// Package claim provides short-lived per-ticket claims. The router takes a
// claim before dispatching a ticket so overlapping poll cycles, customer
// replies and API triggers do not process the same ticket twice.
package claim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long a claim is held unless released.
const DefaultTTL = 2 * time.Minute

// ErrInvalidTicket is returned for an empty ticket id.
var ErrInvalidTicket = errors.New("ticket id is empty")

// Guard hands out exclusive, expiring claims on tickets.
type Guard interface {
	// Acquire claims the ticket for ttl. It returns false when another
	// claim is still live.
	Acquire(ctx context.Context, ticketID string, ttl time.Duration) (bool, error)

	// Held reports whether a live claim exists.
	Held(ctx context.Context, ticketID string) (bool, error)

	// Release drops the claim. Releasing an unclaimed ticket is not an error.
	Release(ctx context.Context, ticketID string) error
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time // ticket id -> expiry
	now    func() time.Time
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, ticketID string, ttl time.Duration) (bool, error) {
	if ticketID == "" {
		return false, ErrInvalidTicket
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.claims[ticketID]; ok && now.Before(exp) {
		return false, nil
	}
	g.claims[ticketID] = now.Add(ttl)
	g.sweep(now)
	return true, nil
}

func (g *MemoryGuard) Held(_ context.Context, ticketID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	exp, ok := g.claims[ticketID]
	return ok && g.now().Before(exp), nil
}

func (g *MemoryGuard) Release(_ context.Context, ticketID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, ticketID)
	return nil
}

// sweep drops expired claims. Called with mu held.
func (g *MemoryGuard) sweep(now time.Time) {
	for id, exp := range g.claims {
		if !now.Before(exp) {
			delete(g.claims, id)
		}
	}
}
