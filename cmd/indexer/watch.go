package main

import (
	"time"

	"github.com/spf13/cobra"
)

var skipInitialSweep bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "先扫描一次，然后监听根目录的变化",
	Long: `watch 先执行一次完整扫描，之后监听文件的创建与修改，
在 indexer.debounce_millis 内合并同一文件的多次事件后重新入库。`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&skipInitialSweep, "skip-initial-sweep", false, "不执行启动时的完整扫描")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ix, roots, cleanup, err := newIndexer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if !skipInitialSweep {
		outcomes, err := ix.Sweep(ctx, roots)
		printSummary(cmd, outcomes)
		if err != nil {
			reportInterrupt(ctx)
			return nil
		}
	}
	err = ix.Watch(ctx, roots, time.Duration(cfg.Indexer.DebounceMillis)*time.Millisecond)
	reportInterrupt(ctx)
	return err
}
