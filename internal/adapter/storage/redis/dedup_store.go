package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupStore implements ports.WebhookDedupStore. Identities are marked only
// after a delivery is fully dispatched, so Seen and Mark are separate
// operations rather than one SET NX: a crash between them leaves the event
// retryable instead of silently dropped.
type DedupStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupStore creates a new Redis-backed webhook dedup store.
func NewDedupStore(client *goredis.Client) *DedupStore {
	return &DedupStore{
		client: client,
		prefix: "webhook:seen:",
	}
}

// Seen reports whether the event identity was already processed. Read only.
func (s *DedupStore) Seen(ctx context.Context, identity string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+identity).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedup exists: %w", err)
	}
	return n > 0, nil
}

// Mark records the event identity as processed for the TTL window.
func (s *DedupStore) Mark(ctx context.Context, identity string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+identity, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis dedup mark: %w", err)
	}
	return nil
}
