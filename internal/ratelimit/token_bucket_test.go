package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int, window time.Duration) (*RedisTokenBucket, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, capacity, window, "")
	if err != nil {
		t.Fatalf("new token bucket: %v", err)
	}
	return bucket, srv
}

func TestAllowExhaustsCapacity(t *testing.T) {
	bucket, _ := newTestBucket(t, 3, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		decision, err := bucket.Allow(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != int64(2-i) {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 2-i, decision.Remaining)
		}
	}

	decision, err := bucket.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth request should be limited")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 21*time.Second {
		t.Fatalf("unexpected retry after %s", decision.RetryAfter)
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	bucket, _ := newTestBucket(t, 2, time.Second)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := bucket.Allow(context.Background(), "user-1"); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if decision, _ := bucket.Allow(context.Background(), "user-1"); decision.Allowed {
		t.Fatal("bucket should be empty")
	}

	now = now.Add(time.Second)
	decision, err := bucket.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("bucket should have refilled")
	}
}

func TestAllowSeparatesSubjects(t *testing.T) {
	bucket, srv := newTestBucket(t, 1, time.Minute)

	if decision, err := bucket.Allow(context.Background(), "user-1"); err != nil || !decision.Allowed {
		t.Fatalf("user-1 first request: allowed=%v err=%v", decision.Allowed, err)
	}
	if decision, err := bucket.Allow(context.Background(), "user-2"); err != nil || !decision.Allowed {
		t.Fatalf("user-2 first request: allowed=%v err=%v", decision.Allowed, err)
	}
	if decision, err := bucket.Allow(context.Background(), "  "); err != nil || !decision.Allowed {
		t.Fatalf("anonymous first request: allowed=%v err=%v", decision.Allowed, err)
	}

	for _, key := range []string{"pixelshelf:ratelimit:user-1", "pixelshelf:ratelimit:user-2", "pixelshelf:ratelimit:anonymous"} {
		if !srv.Exists(key) {
			t.Fatalf("expected bucket key %s", key)
		}
	}
}

func TestNewRedisTokenBucketRejectsBadConfig(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisTokenBucket(client, 0, time.Second, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 1, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestAllowNChargesCost(t *testing.T) {
	bucket, _ := newTestBucket(t, 5, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }

	decision, err := bucket.AllowN(context.Background(), "user-1", 3)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 2 || decision.Limit != 5 {
		t.Fatalf("unexpected decision %+v", decision)
	}

	decision, err = bucket.AllowN(context.Background(), "user-1", 3)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("second expensive request should be limited")
	}

	now = now.Add(time.Minute)
	decision, err = bucket.AllowN(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("oversized cost should drain a full bucket, got %+v", decision)
	}
}

func TestParseDecisionRejectsMalformedReplies(t *testing.T) {
	if _, err := parseDecision("nope"); err == nil {
		t.Fatal("expected error for non-slice reply")
	}
	if _, err := parseDecision([]any{int64(1), int64(2)}); err == nil {
		t.Fatal("expected error for short reply")
	}
	if _, err := parseDecision([]any{int64(1), true, int64(0)}); err == nil {
		t.Fatal("expected error for bool field")
	}

	decision, err := parseDecision([]any{int64(0), "4", int64(1500)})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decision.Allowed || decision.Remaining != 4 || decision.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected decision %+v", decision)
	}
}
