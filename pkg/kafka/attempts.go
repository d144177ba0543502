package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// AttemptCounter 记录任务的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

type redisAttempts struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisAttempts 使用 Redis 计数，计数键 24 小时后过期。
func NewRedisAttempts(rdb redis.Cmdable) AttemptCounter {
	return &redisAttempts{rdb: rdb, ttl: 24 * time.Hour}
}

func (a *redisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, key, a.ttl).Err()
	return n, nil
}

func (a *redisAttempts) Reset(ctx context.Context, key string) {
	_ = a.rdb.Del(ctx, key).Err()
}

type memoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryAttempts 在未配置 Redis 时使用进程内计数。
func NewMemoryAttempts() AttemptCounter {
	return &memoryAttempts{counts: make(map[string]int64)}
}

func (a *memoryAttempts) Incr(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[key]++
	return a.counts[key], nil
}

func (a *memoryAttempts) Reset(_ context.Context, key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, key)
}
