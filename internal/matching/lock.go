package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const recomputeLockKeyPrefix = "matching:recompute:lock:"

// userMutex 是按用户 ID 分片的进程内互斥锁，不再使用的条目会被回收。
// 每个条目是容量为 1 的信号量，等待方可以随 ctx 放弃。
type userMutex struct {
	mu    sync.Mutex
	locks map[uint]*userMutexEntry
}

type userMutexEntry struct {
	sem  chan struct{}
	refs int
}

func newUserMutex() *userMutex {
	return &userMutex{locks: make(map[uint]*userMutexEntry)}
}

// lock 阻塞直到获得该用户的锁，ctx 结束时返回 ctx.Err()。
func (m *userMutex) lock(ctx context.Context, userID uint) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[userID]
	if !ok {
		entry = &userMutexEntry{sem: make(chan struct{}, 1)}
		m.locks[userID] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(userID, entry)
		return nil, ctx.Err()
	}

	return func() {
		<-entry.sem
		m.unref(userID, entry)
	}, nil
}

func (m *userMutex) unref(userID uint, entry *userMutexEntry) {
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, userID)
	}
	m.mu.Unlock()
}

// releaseScript 只删除自己持有的锁。
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker 使用 SET NX PX 在多个进程（API 与 Worker）之间串行化同一用户的重算。
type RedisLocker struct {
	client       redis.UniversalClient
	ttl          time.Duration
	pollInterval time.Duration
}

// NewRedisLocker 返回 RedisLocker。ttl 应覆盖一次完整重算的耗时。
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, pollInterval: 100 * time.Millisecond}
}

// Lock 阻塞直到获得锁或 ctx 结束。
func (l *RedisLocker) Lock(ctx context.Context, userID uint) (func(), error) {
	key := fmt.Sprintf("%s%d", recomputeLockKeyPrefix, userID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquire recompute lock %q: %w", key, err)
		}
		if ok {
			return func() {
				// 请求可能已被取消，释放锁不能依赖它。
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for recompute lock %q: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
