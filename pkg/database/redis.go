package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"kb-rag-go/internal/config"
	"kb-rag-go/pkg/log"
)

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
