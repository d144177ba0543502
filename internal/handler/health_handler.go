package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/vectorstore"
	"kb-rag-go/pkg/log"
)

// HealthHandler 报告服务与集合的可用性。
type HealthHandler struct {
	store   vectorstore.Store
	timeout time.Duration
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(store vectorstore.Store) *HealthHandler {
	return &HealthHandler{store: store, timeout: 3 * time.Second}
}

// Health 总是返回 200；集合不可用时 status 为 degraded。
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := model.HealthResponse{Status: model.HealthOK, Collection: h.store.Name(), Available: true}
	if err := h.store.Ping(ctx); err != nil {
		log.Warnf("[HealthHandler] 集合不可用, collection: %s, error: %v", h.store.Name(), err)
		resp.Status = model.HealthDegraded
		resp.Available = false
	}
	c.JSON(http.StatusOK, resp)
}
