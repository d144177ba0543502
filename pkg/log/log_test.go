package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestUse_RoutesHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	defer Use(zap.NewNop())

	Infof("[IngestService] 文档入库成功, document_id: %s", "sops/a.txt")
	Warnw("[Indexer] 扫描完成", "files", 3)
	Error("写入失败", errors.New("boom"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "[IngestService] 文档入库成功, document_id: sops/a.txt", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(3), entries[1].ContextMap()["files"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestInit_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, Init("debug", "json", dir))
	defer Use(zap.NewNop())

	Info("hello")
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
