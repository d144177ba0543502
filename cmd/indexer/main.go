// Package main 是知识库 indexer 命令行的入口点。
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
