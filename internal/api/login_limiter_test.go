package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memCounter 用内存 map 模拟登录限流所需的 Redis 命令。
type memCounter struct {
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemCounter() *memCounter {
	return &memCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	m.counts[key]++
	cmd.SetVal(m.counts[key])
	return cmd
}

func (m *memCounter) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.ttls[key] = ttl
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	cmd.SetVal(true)
	return cmd
}

func (m *memCounter) TTL(ctx context.Context, key string) *redis.DurationCmd {
	cmd := redis.NewDurationCmd(ctx, time.Second, "ttl", key)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	ttl, ok := m.ttls[key]
	if !ok {
		ttl = -2 * time.Second
	}
	cmd.SetVal(ttl)
	return cmd
}

func (m *memCounter) Set(ctx context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	m.ttls[key] = ttl
	cmd := redis.NewStatusCmd(ctx, "set", key)
	cmd.SetVal("OK")
	return cmd
}

func (m *memCounter) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.counts, key)
		delete(m.ttls, key)
	}
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestLoginLimiter_RateLimitPerHour(t *testing.T) {
	ctx := context.Background()
	limiter := newLoginLimiter(newMemCounter(), 2)
	limiter.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		if err := limiter.check(ctx, "10.0.0.1", "Alice"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i+1, err)
		}
	}
	if err := limiter.check(ctx, "10.0.0.1", "alice"); !errors.Is(err, errLoginRateLimited) {
		t.Fatalf("expected rate limit got %v", err)
	}
	if err := limiter.check(ctx, "10.0.0.2", "alice"); err != nil {
		t.Fatalf("other ip must not share the bucket, got %v", err)
	}

	limiter.now = func() time.Time { return time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC) }
	if err := limiter.check(ctx, "10.0.0.1", "alice"); err != nil {
		t.Fatalf("next hour must reset the bucket, got %v", err)
	}
}

func TestLoginLimiter_LocksAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	counter := newMemCounter()
	limiter := newLoginLimiter(counter, 0)

	for i := 0; i < loginLockThreshold-1; i++ {
		if err := limiter.recordFailure(ctx, "bob"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := limiter.check(ctx, "10.0.0.1", "bob"); err != nil {
		t.Fatalf("below threshold must not lock, got %v", err)
	}

	if err := limiter.recordFailure(ctx, "BOB"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := limiter.check(ctx, "10.0.0.1", "bob"); !errors.Is(err, errLoginLocked) {
		t.Fatalf("expected lock got %v", err)
	}
	if counter.ttls[lockKey("bob")] != loginLockTTL {
		t.Fatalf("unexpected lock ttl %v", counter.ttls[lockKey("bob")])
	}

	if err := limiter.reset(ctx, "bob"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, ok := counter.counts[failKey("bob")]; ok {
		t.Fatal("reset must clear the failure counter")
	}
}

func TestLoginLimiter_FailsOpen(t *testing.T) {
	counter := newMemCounter()
	counter.err = errors.New("dial tcp: connection refused")
	limiter := newLoginLimiter(counter, 1)

	for i := 0; i < 3; i++ {
		if err := limiter.check(context.Background(), "10.0.0.1", "carol"); err != nil {
			t.Fatalf("redis outage must not block logins, got %v", err)
		}
	}

	if err := newLoginLimiter(nil, 1).check(context.Background(), "10.0.0.1", "carol"); err != nil {
		t.Fatalf("nil redis must not block logins, got %v", err)
	}
}
