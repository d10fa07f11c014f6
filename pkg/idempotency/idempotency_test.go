package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/salesops/basket-engine/pkg/redis"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "basket:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestSeenFirstDelivery(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	seen, err := guard.Seen(context.Background(), "order-events", "msg-1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Fatalf("first delivery reported as seen")
	}
	if store.lastKey != "basket:idempotency:order-events:msg-1" {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestSeenRedelivery(t *testing.T) {
	guard, err := NewGuard(&fakeStore{setNXResult: false}, 0)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	seen, err := guard.Seen(context.Background(), "order-events", "msg-1")
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if !seen {
		t.Fatalf("redelivery not detected")
	}
}

func TestSeenPropagatesStoreErrors(t *testing.T) {
	guard, _ := NewGuard(&fakeStore{setNXError: errors.New("redis down")}, time.Hour)
	if _, err := guard.Seen(context.Background(), "order-events", "msg-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGuardValidatesInput(t *testing.T) {
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewGuard(&fakeStore{}, -time.Second); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
	guard, _ := NewGuard(&fakeStore{}, time.Hour)
	if _, err := guard.Seen(context.Background(), "", "msg-1"); err == nil {
		t.Fatalf("expected error for empty consumer")
	}
	if _, err := guard.Seen(context.Background(), "order-events", " "); err == nil {
		t.Fatalf("expected error for empty message id")
	}
}

func TestForgetAllowsReprocessing(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	guard, err := NewGuard(client, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	ctx := context.Background()

	if seen, _ := guard.Seen(ctx, "order-events", "msg-9"); seen {
		t.Fatalf("first delivery reported as seen")
	}
	if seen, _ := guard.Seen(ctx, "order-events", "msg-9"); !seen {
		t.Fatalf("second delivery not detected")
	}
	if !srv.Exists("basket:idempotency:order-events:msg-9") {
		t.Fatalf("expected namespaced key in redis")
	}
	if err := guard.Forget(ctx, "order-events", "msg-9"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if seen, _ := guard.Seen(ctx, "order-events", "msg-9"); seen {
		t.Fatalf("forgotten message still reported as seen")
	}
}
