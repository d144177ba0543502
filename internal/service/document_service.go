package service

import (
	"context"
	"errors"
	"fmt"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/repository"
	"kb-rag-go/internal/vectorstore"
)

// ErrLedgerDisabled 表示未配置版本台账（mysql.enabled=false）。
var ErrLedgerDisabled = errors.New("document version ledger is disabled")

// DocumentInfo 汇总集合中某个文档的当前状态。
type DocumentInfo struct {
	DocumentID   string                  `json:"document_id"`
	ChunkIDs     []string                `json:"chunk_ids"`
	Version      *int                    `json:"version"`
	DocHash      string                  `json:"doc_hash,omitempty"`
	LastModified string                  `json:"last_modified,omitempty"`
	History      []model.DocumentVersion `json:"history,omitempty"`
}

// DocumentService 接口定义了文档状态查询相关的业务操作。
type DocumentService interface {
	Describe(ctx context.Context, documentID string) (*DocumentInfo, error)
	ListVersions(documentID string) ([]model.DocumentVersion, error)
}

type documentService struct {
	store  vectorstore.Store
	ledger repository.DocumentVersionRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例，ledger 可为 nil。
func NewDocumentService(store vectorstore.Store, ledger repository.DocumentVersionRepository) DocumentService {
	return &documentService{store: store, ledger: ledger}
}

// Describe 读取集合中该文档的全部分块 ID 与当前版本。文档不存在时 ChunkIDs 为空。
func (s *documentService) Describe(ctx context.Context, documentID string) (*DocumentInfo, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document_id 不能为空", ErrInvalidRequest)
	}
	records, err := s.store.Get(ctx, vectorstore.Filter{DocumentID: documentID})
	if err != nil {
		return nil, fmt.Errorf("查询文档分块失败: %w", err)
	}

	info := &DocumentInfo{DocumentID: documentID, ChunkIDs: make([]string, 0, len(records))}
	for _, r := range records {
		info.ChunkIDs = append(info.ChunkIDs, r.ID)
	}
	if len(records) > 0 {
		meta := records[0].Metadata
		if v, ok := model.MetadataInt(meta, model.MetaVersion); ok {
			info.Version = &v
		}
		info.DocHash, _ = model.MetadataString(meta, model.MetaDocHash)
		info.LastModified, _ = model.MetadataString(meta, model.MetaLastModified)
	}
	if s.ledger != nil {
		if history, err := s.ledger.FindByDocumentID(documentID); err == nil {
			info.History = history
		}
	}
	return info, nil
}

// ListVersions 返回台账中的版本历史。
func (s *documentService) ListVersions(documentID string) ([]model.DocumentVersion, error) {
	if s.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	if documentID == "" {
		return nil, fmt.Errorf("%w: document_id 不能为空", ErrInvalidRequest)
	}
	return s.ledger.FindByDocumentID(documentID)
}
