package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket_BurstThenReject(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, _, err := bucket.Allow(ctx, "rl:extraction")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed, got allowed=%v err=%v", allowed, err)
	}
	allowed, remaining, _ := bucket.Allow(ctx, "rl:extraction")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	if remaining >= 1 {
		t.Fatalf("expected bucket drained, remaining=%f", remaining)
	}
	allowed, _, _ = bucket.Allow(ctx, "rl:extraction")
	if allowed {
		t.Fatalf("expected third token rejected")
	}

	// Separate keys hold separate budgets.
	allowed, _, _ = bucket.Allow(ctx, "rl:other")
	if !allowed {
		t.Fatalf("expected fresh key to have its own capacity")
	}

	// Refill cannot be exercised with miniredis.FastForward: the script
	// takes its clock from Go's time.Now, not Redis.
}

func TestParseBucketReply(t *testing.T) {
	allowed, tokens, err := parseBucketReply([]interface{}{int64(1), int64(3)})
	if err != nil || !allowed || tokens != 3 {
		t.Fatalf("expected allowed with 3 tokens, got allowed=%v tokens=%f err=%v", allowed, tokens, err)
	}
	allowed, _, err = parseBucketReply([]interface{}{int64(0), float64(0.5)})
	if err != nil || allowed {
		t.Fatalf("expected deny, got allowed=%v err=%v", allowed, err)
	}

	// A malformed reply must surface as an error, not a silent deny: the
	// caller fails open on errors but honors an allowed=false verdict.
	malformed := []interface{}{
		"not an array, not even close",
		[]interface{}{int64(1)},
		[]interface{}{"yes", int64(1)},
		[]interface{}{int64(1), "many"},
	}
	for _, res := range malformed {
		if _, _, err := parseBucketReply(res); err == nil {
			t.Fatalf("expected error for reply %v", res)
		}
	}
}
