// Package main 是 RAG API 服务的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kb-rag-go/internal/bootstrap"
	"kb-rag-go/internal/config"
	"kb-rag-go/internal/handler"
	"kb-rag-go/internal/indexer"
	"kb-rag-go/internal/middleware"
	"kb-rag-go/internal/pipeline"
	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/kafka"
	"kb-rag-go/pkg/log"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置不合法: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化集合、文档锁与版本台账
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	res, err := bootstrap.Open(initCtx, cfg)
	cancelInit()
	if err != nil {
		log.Fatal("初始化存储失败", err)
	}
	defer res.Close()

	// 4. 初始化 Service (依赖注入)
	ingestService := service.NewIngestService(res.Store, res.Locker, res.Ledger)
	queryService := service.NewQueryService(res.Store)
	documentService := service.NewDocumentService(res.Store, res.Ledger)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 5. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		var attempts kafka.AttemptCounter
		if res.Redis != nil {
			attempts = kafka.NewRedisAttempts(res.Redis)
		}
		consumer := kafka.NewConsumer(cfg.Kafka, pipeline.NewProcessor(ingestService), attempts)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(bgCtx); err != nil {
				log.Error("Kafka 消费者退出", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// 5.1 启动时在进程内扫描一次知识库目录，内容未变化的文档会被跳过
	if cfg.Indexer.SweepOnStart {
		go sweepOnStart(bgCtx, cfg, ingestService)
	}

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	r.POST("/ingest", handler.NewIngestHandler(ingestService).Ingest)
	r.POST("/query", handler.NewQueryHandler(queryService, cfg.Query.DefaultTopK).Query)
	r.GET("/health", handler.NewHealthHandler(res.Store).Health)
	documents := r.Group("/documents")
	{
		documentHandler := handler.NewDocumentHandler(documentService)
		documents.GET("/describe", documentHandler.Describe)
		documents.GET("/versions", documentHandler.ListVersions)
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s, collection: %s", srv.Addr, res.Store.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	cancelBg()
	<-consumerDone
	log.Info("服务已退出")
}

// sweepOnStart 以进程内入库服务为 sink 扫描一次 indexer.roots。
func sweepOnStart(ctx context.Context, cfg *config.Config, ingest service.IngestService) {
	roots, err := indexer.NewRoots(cfg.Indexer.Roots)
	if err != nil {
		log.Warnf("[SweepOnStart] 跳过启动扫描: %v", err)
		return
	}
	ix, err := indexer.New(bootstrap.NewExtractor(cfg), ingest, indexer.Options{
		MaxChars:    cfg.Chunker.MaxChars,
		Concurrency: cfg.Indexer.Concurrency,
	})
	if err != nil {
		log.Warnf("[SweepOnStart] 跳过启动扫描: %v", err)
		return
	}
	if _, err := ix.Sweep(ctx, roots); err != nil {
		log.Warnf("[SweepOnStart] 启动扫描未完成: %v", err)
	}
}
