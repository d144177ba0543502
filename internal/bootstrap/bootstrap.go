// Package bootstrap 根据配置组装两个可执行程序共用的存储、锁与台账。
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"kb-rag-go/internal/config"
	"kb-rag-go/internal/indexer"
	"kb-rag-go/internal/lock"
	"kb-rag-go/internal/repository"
	"kb-rag-go/internal/vectorstore"
	"kb-rag-go/pkg/database"
	"kb-rag-go/pkg/embedding"
	"kb-rag-go/pkg/es"
	"kb-rag-go/pkg/log"
	"kb-rag-go/pkg/storage"
	"kb-rag-go/pkg/tika"
)

// Resources 持有已建立的外部连接，程序退出前调用 Close。
type Resources struct {
	Store  vectorstore.Store
	Locker lock.Locker
	Ledger repository.DocumentVersionRepository // mysql.enabled=false 时为 nil
	Redis  *redis.Client                        // 不需要 Redis 时为 nil

	db *gorm.DB
}

// Open 按配置建立集合、锁与台账。任何一步失败都会关闭已建立的连接。
func Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	res := &Resources{}
	ok := false
	defer func() {
		if !ok {
			res.Close()
		}
	}()

	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res.Store = store

	if cfg.Lock.Backend == "redis" || cfg.Kafka.Enabled {
		rdb, err := database.InitRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		res.Redis = rdb
	}
	if cfg.Lock.Backend == "redis" {
		res.Locker = lock.NewRedisLocker(res.Redis, cfg.Lock.TTL())
		log.Infof("[Bootstrap] 使用 Redis 文档锁, ttl: %s", cfg.Lock.TTL())
	} else {
		res.Locker = lock.NewKeyedMutex()
	}

	if cfg.MySQL.Enabled {
		db, err := database.InitMySQL(cfg.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		res.db = db
		if err := repository.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("迁移版本台账表失败: %w", err)
		}
		res.Ledger = repository.NewDocumentVersionRepository(db)
	}

	ok = true
	return res, nil
}

// NewStore 在配置了 elasticsearch.addresses 时使用 Elasticsearch 索引，否则使用进程内集合。
func NewStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	if strings.TrimSpace(cfg.Elasticsearch.Addresses) == "" {
		log.Warnf("[Bootstrap] 未配置 elasticsearch.addresses, 使用进程内集合 '%s'", cfg.Elasticsearch.IndexName)
		return vectorstore.NewMemoryStore(cfg.Elasticsearch.IndexName), nil
	}
	client, err := es.NewClient(cfg.Elasticsearch)
	if err != nil {
		return nil, fmt.Errorf("创建 Elasticsearch 客户端失败: %w", err)
	}
	var embedder es.Embedder
	if embedding.Enabled(cfg.Embedding) {
		embedder = embedding.NewClient(cfg.Embedding)
	} else {
		log.Warnf("[Bootstrap] 未配置 embedding, 检索退化为全文匹配")
	}
	store := es.NewStore(client, cfg.Elasticsearch.IndexName, embedder)
	if err := store.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("初始化索引失败: %w", err)
	}
	return store, nil
}

// NewExtractor 配置了 tika.server_url 时使用 Tika 提取 PDF/DOCX。
func NewExtractor(cfg *config.Config) indexer.Extractor {
	if cfg.Tika.ServerURL == "" {
		return indexer.NewExtractor(nil)
	}
	return indexer.NewExtractor(tika.NewClient(cfg.Tika))
}

// NewArchiver 在 minio.enabled 时返回源文件归档，否则返回 nil。
func NewArchiver(ctx context.Context, cfg *config.Config) (indexer.Archiver, error) {
	if !cfg.MinIO.Enabled {
		return nil, nil
	}
	client, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	archive := storage.NewSourceArchive(client, cfg.MinIO.BucketName)
	if err := archive.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

// Close 关闭 Redis 与 MySQL 连接。
func (r *Resources) Close() {
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			log.Warnf("[Bootstrap] 关闭 Redis 连接失败: %v", err)
		}
	}
	if r.db != nil {
		if sqlDB, err := r.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
