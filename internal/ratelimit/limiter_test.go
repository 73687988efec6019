package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter connected to a local Redis instance and
// removes leftover test keys. Tests that call this helper require a
// running Redis on localhost:6379; they skip otherwise.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	clean := func() {
		for _, pattern := range []string{"rl:*:test_rl_*", "test_rl_rule:*"} {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewLimiter(client)
}

func TestAllow_UnderLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test_rl_rule:", Limit: 3, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		ok, err := limiter.Allow(ctx, "test_rl_under", rule)
		if err != nil {
			t.Fatalf("Allow() #%d error: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test_rl_rule:", Limit: 2, Window: time.Minute}

	limiter.Allow(ctx, "test_rl_over", rule)
	limiter.Allow(ctx, "test_rl_over", rule)

	ok, err := limiter.Allow(ctx, "test_rl_over", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Error("request over the limit should be denied")
	}
}

func TestAllow_IndependentIdentifiers(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test_rl_rule:", Limit: 1, Window: time.Minute}

	if ok, _ := limiter.Allow(ctx, "test_rl_u1", rule); !ok {
		t.Fatal("first request for u1 should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "test_rl_u1", rule); ok {
		t.Error("second request for u1 should be denied")
	}
	// A different identifier has its own window.
	if ok, _ := limiter.Allow(ctx, "test_rl_u2", rule); !ok {
		t.Error("first request for u2 should be allowed")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test_rl_rule:", Limit: 1, Window: time.Second}

	if ok, _ := limiter.Allow(ctx, "test_rl_expire", rule); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "test_rl_expire", rule); ok {
		t.Fatal("second request should be denied")
	}

	time.Sleep(1100 * time.Millisecond)

	if ok, _ := limiter.Allow(ctx, "test_rl_expire", rule); !ok {
		t.Error("request after the window expired should be allowed")
	}
}

func TestRemaining(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "test_rl_rule:", Limit: 5, Window: time.Minute}

	n, err := limiter.Remaining(ctx, "test_rl_rem", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected full limit before any request, got %d", n)
	}

	limiter.Allow(ctx, "test_rl_rem", rule)
	limiter.Allow(ctx, "test_rl_rem", rule)

	n, err = limiter.Remaining(ctx, "test_rl_rem", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 remaining after 2 requests, got %d", n)
	}

	// Never negative, even past the limit.
	for i := 0; i < 10; i++ {
		limiter.Allow(ctx, "test_rl_rem", rule)
	}
	n, _ = limiter.Remaining(ctx, "test_rl_rem", rule)
	if n != 0 {
		t.Errorf("expected 0 remaining past the limit, got %d", n)
	}
}
