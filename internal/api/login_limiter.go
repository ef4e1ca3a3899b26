package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginLockThreshold = 5
	loginLockTTL       = 15 * time.Minute
)

var (
	errLoginRateLimited = errors.New("rate limit exceeded")
	errLoginLocked      = errors.New("account temporarily locked")
)

// loginCounter 是登录限流用到的 Redis 命令子集。
type loginCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// loginLimiter 按 IP+用户名做小时级限流，连续失败达到阈值后锁定账号一段时间。
// Redis 不可用时放行。
type loginLimiter struct {
	redis   loginCounter
	perHour int
	now     func() time.Time
}

func newLoginLimiter(client loginCounter, perHour int) *loginLimiter {
	return &loginLimiter{redis: client, perHour: perHour, now: time.Now}
}

// check 在校验口令之前调用；返回 errLoginRateLimited 或 errLoginLocked 时应拒绝请求。
func (l *loginLimiter) check(ctx context.Context, clientIP, username string) error {
	if l.redis == nil {
		return nil
	}
	username = strings.ToLower(username)

	if l.perHour > 0 {
		key := "rate:login:" + clientIP + ":" + username + ":" + l.now().UTC().Format("2006010215")
		count, err := incrWithTTL(ctx, l.redis, key, time.Hour)
		if err == nil && count > int64(l.perHour) {
			return errLoginRateLimited
		}
	}

	if ttl, err := l.redis.TTL(ctx, lockKey(username)).Result(); err == nil && ttl > 0 {
		return errLoginLocked
	}
	return nil
}

// recordFailure 累计失败次数，达到阈值时写入锁定标记。
func (l *loginLimiter) recordFailure(ctx context.Context, username string) error {
	if l.redis == nil {
		return nil
	}
	username = strings.ToLower(username)
	count, err := incrWithTTL(ctx, l.redis, failKey(username), loginLockTTL)
	if err != nil {
		return err
	}
	if count >= loginLockThreshold {
		return l.redis.Set(ctx, lockKey(username), "1", loginLockTTL).Err()
	}
	return nil
}

// reset 在登录成功后清空失败计数。
func (l *loginLimiter) reset(ctx context.Context, username string) error {
	if l.redis == nil {
		return nil
	}
	return l.redis.Del(ctx, failKey(strings.ToLower(username))).Err()
}

func lockKey(username string) string { return "lock:login:" + username }
func failKey(username string) string { return "lock:login:fail:" + username }

func incrWithTTL(ctx context.Context, client loginCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
