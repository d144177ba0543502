package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/log"
)

// QueryHandler 负责处理 /query 请求。
type QueryHandler struct {
	queryService service.QueryService
	defaultTopK  int
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService, defaultTopK int) *QueryHandler {
	return &QueryHandler{queryService: queryService, defaultTopK: defaultTopK}
}

// Query 执行相似度检索，top_k 缺省时使用配置值。
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式错误: " + err.Error()})
		return
	}
	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	results, err := h.queryService.Query(c.Request.Context(), req.Query, topK)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTopK) || errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[QueryHandler] 检索失败, error: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.QueryResponse{Results: results})
}
