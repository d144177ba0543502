// Package pipeline 把队列中的入库任务交给入库服务处理。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/log"
	"kb-rag-go/pkg/tasks"
)

// Processor 封装了任务处理的依赖和逻辑。
type Processor struct {
	ingest service.IngestService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(ingest service.IngestService) *Processor {
	return &Processor{ingest: ingest}
}

// Process 执行一个入库任务。请求本身不合法时只记日志并返回 nil，重试无法让它成功。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	req := task.Request
	log.Infof("[Processor] 开始处理入库任务, document_id: %s, chunks: %d, enqueued_at: %s",
		req.DocumentID, len(req.Chunks), task.EnqueuedAt.Format("2006-01-02T15:04:05Z07:00"))

	resp, err := p.ingest.Ingest(ctx, &req)
	if errors.Is(err, service.ErrInvalidRequest) {
		log.Warnf("[Processor] 丢弃不合法的入库任务, document_id: %s, error: %v", req.DocumentID, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("入库失败 (document_id=%s): %w", req.DocumentID, err)
	}
	log.Infof("[Processor] 入库任务完成, document_id: %s, status: %s, ingested: %d", resp.DocumentID, resp.Status, resp.Ingested)
	return nil
}
