package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"kb-rag-go/internal/indexer"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "扫描一次全部根目录",
	Long: `对 indexer.roots 下的每个文件执行一次入库。
单个文件失败不会中断扫描；存在失败文件时命令以非零状态退出。`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
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

	outcomes, err := ix.Sweep(ctx, roots)
	printSummary(cmd, outcomes)
	if err != nil {
		reportInterrupt(ctx)
		return err
	}
	if failed := countFailed(outcomes); failed > 0 {
		return fmt.Errorf("%d 个文件处理失败", failed)
	}
	return nil
}

func printSummary(cmd *cobra.Command, outcomes []indexer.Outcome) {
	counts := make(map[string]int)
	ingested := 0
	for _, o := range outcomes {
		counts[o.Status]++
		ingested += o.Ingested
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	cmd.Printf("处理文件 %d 个, 写入分块 %d 个\n", len(outcomes), ingested)
	for _, s := range statuses {
		cmd.Printf("  %-20s %d\n", s, counts[s])
	}
}

func countFailed(outcomes []indexer.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == indexer.StatusError {
			n++
		}
	}
	return n
}
