package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kb-rag-go/internal/config"
	"kb-rag-go/pkg/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "扫描知识库目录并把文档提交给 RAG API",
	Long: `indexer 遍历 indexer.roots 下的文件，提取文本、分块并计算内容指纹，
然后按 indexer.sink 把入库请求发给 RAG API、Kafka 队列或进程内入库服务。
内容未变化的文档由入库服务跳过，因此重复扫描是安全的。`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
}

// Execute 运行根命令。
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig 加载并校验 indexer 配置，然后初始化日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateIndexer(); err != nil {
		return nil, fmt.Errorf("配置不合法: %w", err)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

func reportInterrupt(ctx context.Context) {
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "已中断")
	}
}
