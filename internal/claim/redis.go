package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces claim keys: autopatch:claim:{ticket_id}
const keyPrefix = "autopatch:claim:"

// RedisGuard shares claims between daemon instances through Redis.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
}

var _ Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a RedisGuard. An empty prefix means the default.
func NewRedisGuard(client redis.UniversalClient, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = keyPrefix
	}
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) key(ticketID string) string {
	return g.prefix + ticketID
}

// Acquire uses SET NX so concurrent instances cannot both win.
func (g *RedisGuard) Acquire(ctx context.Context, ticketID string, ttl time.Duration) (bool, error) {
	if ticketID == "" {
		return false, ErrInvalidTicket
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := g.client.SetNX(ctx, g.key(ticketID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring claim: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Held(ctx context.Context, ticketID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(ticketID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking claim: %w", err)
	}
	return n > 0, nil
}

func (g *RedisGuard) Release(ctx context.Context, ticketID string) error {
	if err := g.client.Del(ctx, g.key(ticketID)).Err(); err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}
