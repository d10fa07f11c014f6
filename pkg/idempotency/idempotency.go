package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/salesops/basket-engine/pkg/redis"
)

// DefaultTTL covers Pub/Sub's maximum redelivery window.
const DefaultTTL = 7 * 24 * time.Hour

// Guard remembers which messages a consumer already handled, using Redis
// SETNX with a TTL. Keys look like basket:idempotency:<consumer>:<message_id>.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a guard. A zero ttl falls back to DefaultTTL.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen reports whether messageID was already claimed by consumer and
// claims it otherwise.
func (g *Guard) Seen(ctx context.Context, consumer, messageID string) (bool, error) {
	key, err := g.key(consumer, messageID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget releases a claim so a redelivery is processed again.
func (g *Guard) Forget(ctx context.Context, consumer, messageID string) error {
	key, err := g.key(consumer, messageID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer, messageID string) (string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(messageID) == "" {
		return "", errors.New("message id is required")
	}
	return g.store.IdempotencyKey(consumer, messageID), nil
}
