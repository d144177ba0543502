package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/service"
	"kb-rag-go/pkg/log"
)

// DocumentHandler 负责查询文档当前状态与版本历史。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Describe 返回文档在集合中的分块 ID 与当前版本。document_id 含有 "/"，所以走查询参数。
func (h *DocumentHandler) Describe(c *gin.Context) {
	documentID := c.Query("document_id")
	info, err := h.docService.Describe(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("Describe: failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "查询文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档状态成功",
		"data":    info,
	})
}

// ListVersions 返回版本台账中的历史记录。
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	documentID := c.Query("document_id")
	versions, err := h.docService.ListVersions(documentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrLedgerDisabled):
			c.JSON(http.StatusNotImplemented, gin.H{"error": "版本台账未启用"})
		default:
			log.Error("ListVersions: failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "获取版本历史失败"})
		}
		return
	}
	if versions == nil {
		versions = []model.DocumentVersion{}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取版本历史成功",
		"data":    versions,
	})
}
