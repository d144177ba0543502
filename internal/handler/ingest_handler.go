// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/log"
)

// IngestHandler 负责处理 /ingest 请求。
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{ingestService: ingestService}
}

// Ingest 接收一个文档的全部分块并执行 跳过/替换。
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式错误: " + err.Error()})
		return
	}

	resp, err := h.ingestService.Ingest(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[IngestHandler] 入库失败, document_id: %s, error: %v", req.DocumentID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
