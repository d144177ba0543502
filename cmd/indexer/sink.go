package main

import (
	"context"
	"time"

	"kb-rag-go/internal/bootstrap"
	"kb-rag-go/internal/config"
	"kb-rag-go/internal/indexer"
	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/kafka"
	"kb-rag-go/pkg/log"
	"kb-rag-go/pkg/ragapi"
)

// retryBase 是 API sink 重试的初始退避时间。
const retryBase = 500 * time.Millisecond

// buildSink 按 indexer.sink 组装提交目标，返回的 cleanup 必须在退出前调用。
func buildSink(ctx context.Context, cfg *config.Config) (indexer.Sink, func(), error) {
	switch cfg.Indexer.Sink {
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka)
		log.Infof("[Indexer] 使用 Kafka sink, topic: %s", cfg.Kafka.Topic)
		return producer, func() {
			if err := producer.Close(); err != nil {
				log.Warnf("[Indexer] 关闭 Kafka 生产者失败: %v", err)
			}
		}, nil
	case "local":
		res, err := bootstrap.Open(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("[Indexer] 使用进程内 sink, collection: %s", res.Store.Name())
		return service.NewIngestService(res.Store, res.Locker, res.Ledger), res.Close, nil
	default:
		log.Infof("[Indexer] 使用 API sink, base_url: %s", cfg.RAGAPI.BaseURL)
		client := ragapi.NewClient(cfg.RAGAPI)
		return indexer.WithRetry(client, cfg.RAGAPI.MaxRetries, retryBase), func() {}, nil
	}
}

// newIndexer 校验根目录并组装 Indexer。根目录缺失时在任何存储调用之前返回错误。
func newIndexer(ctx context.Context, cfg *config.Config) (*indexer.Indexer, []indexer.Root, func(), error) {
	roots, err := indexer.NewRoots(cfg.Indexer.Roots)
	if err != nil {
		return nil, nil, nil, err
	}
	archiver, err := bootstrap.NewArchiver(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, cleanup, err := buildSink(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ix, err := indexer.New(bootstrap.NewExtractor(cfg), sink, indexer.Options{
		MaxChars:    cfg.Chunker.MaxChars,
		Concurrency: cfg.Indexer.Concurrency,
		Archiver:    archiver,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return ix, roots, cleanup, nil
}
