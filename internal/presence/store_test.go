package presence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// removes leftover test keys. Tests skip when Redis is not reachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	clean := func() {
		iter := client.Scan(ctx, 0, KeyPrefix+"test_p_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client)
}

func TestSetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	before := time.Now().Unix()
	if err := store.Set(ctx, "test_p_u1", StatusChatting, "sess-1"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	p, err := store.Get(ctx, "test_p_u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p == nil {
		t.Fatal("expected presence, got nil")
	}
	if p.Status != StatusChatting {
		t.Errorf("expected status %q, got %q", StatusChatting, p.Status)
	}
	if p.SessionID != "sess-1" {
		t.Errorf("expected session id %q, got %q", "sess-1", p.SessionID)
	}
	if p.LastActive < before {
		t.Errorf("last_active %d predates the write at %d", p.LastActive, before)
	}
}

func TestSet_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "test_p_u2", StatusWaiting, "")
	if err := store.Set(ctx, "test_p_u2", StatusIdle, ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	p, err := store.Get(ctx, "test_p_u2")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p.Status != StatusIdle {
		t.Errorf("expected status %q, got %q", StatusIdle, p.Status)
	}
}

func TestGet_Absent(t *testing.T) {
	store := newTestStore(t)

	p, err := store.Get(context.Background(), "test_p_nobody")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil for absent user, got %+v", p)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "test_p_u3", StatusWaiting, "")
	if err := store.Clear(ctx, "test_p_u3"); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	p, err := store.Get(ctx, "test_p_u3")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil after clear, got %+v", p)
	}

	// Clearing an absent user is a no-op.
	if err := store.Clear(ctx, "test_p_u3"); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
}
