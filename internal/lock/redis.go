package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"kb-rag-go/pkg/log"
)

// keyPrefix 为锁键加上命名空间，避免与其它 Redis 数据冲突。
const keyPrefix = "kbrag:lock:"

// unlockScript 只有当锁仍由本持有者（token 相同）持有时才删除。
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// ErrLockTimeout 表示在 ctx 结束前没有拿到锁。
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// redisClient 是 RedisLocker 用到的最小命令集，*redis.Client 满足它。
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker 是多进程共享集合时使用的分布式锁：SET NX + 持有者 token + TTL。
// TTL 防止持有者崩溃后锁永远不释放，因此 TTL 必须大于单个文档入库的最长耗时。
type RedisLocker struct {
	client       redisClient
	ttl          time.Duration
	pollInterval time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker 创建一个分布式锁。
func NewRedisLocker(client redisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, pollInterval: 50 * time.Millisecond}
}

// Lock 轮询 SET NX 直到成功或 ctx 结束。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("获取分布式锁失败 (key=%s): %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (key=%s): %v", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// 释放锁不受调用方 ctx 取消影响
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.Eval(releaseCtx, unlockScript, []string{redisKey}, token).Err(); err != nil {
			log.Warnf("[RedisLocker] 释放锁失败, key=%s, error=%v", key, err)
		}
	}, nil
}
