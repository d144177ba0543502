// Package service 包含了入库与检索的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"

	"kb-rag-go/internal/lock"
	"kb-rag-go/internal/model"
	"kb-rag-go/internal/repository"
	"kb-rag-go/internal/vectorstore"
	"kb-rag-go/pkg/log"
)

// ErrInvalidRequest 表示请求本身不合法，调用方应返回 400。
var ErrInvalidRequest = errors.New("invalid request")

// IngestService 接口定义了文档入库操作。
type IngestService interface {
	Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error)
}

type ingestService struct {
	store  vectorstore.Store
	locker lock.Locker
	ledger repository.DocumentVersionRepository // 可为 nil
}

// NewIngestService 创建一个新的 IngestService 实例。ledger 为 nil 时不记录版本台账。
func NewIngestService(store vectorstore.Store, locker lock.Locker, ledger repository.DocumentVersionRepository) IngestService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &ingestService{
		store:  store,
		locker: locker,
		ledger: ledger,
	}
}

// Ingest 对单个文档执行 查询现状 -> 判断跳过 -> 删除旧分块 -> 写入新分块。
// 同一 document_id 的调用通过 locker 串行化；存储错误直接返回，不在这里重试。
func (s *ingestService) Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error) {
	if req == nil || req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document_id 不能为空", ErrInvalidRequest)
	}
	if len(req.Chunks) == 0 {
		log.Infof("[IngestService] 文档没有分块, 跳过, document_id: %s", req.DocumentID)
		return &model.IngestResponse{Status: model.StatusNoChunks, DocumentID: req.DocumentID}, nil
	}
	if err := validateChunks(req.Chunks); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("获取文档锁失败 (document_id=%s): %w", req.DocumentID, err)
	}
	defer unlock()

	// 1. 查询现有分块的哈希与版本
	existing, err := s.store.Get(ctx, vectorstore.Filter{DocumentID: req.DocumentID})
	if err != nil {
		log.Errorf("[IngestService] 查询现有分块失败, document_id: %s, error: %v", req.DocumentID, err)
		return nil, fmt.Errorf("查询现有分块失败: %w", err)
	}
	existingHash, existingVersion := currentState(existing)

	// 2. 哈希一致则整个入库是 no-op
	newHash := req.Hash()
	if newHash != "" && existingHash != "" && newHash == existingHash {
		log.Infof("[IngestService] 内容未变化, 跳过, document_id: %s, version: %d", req.DocumentID, existingVersion)
		return &model.IngestResponse{
			Status:     model.StatusSkippedUnchanged,
			Ingested:   0,
			DocumentID: req.DocumentID,
			DocHash:    newHash,
		}, nil
	}

	// 3. 版本号 +1，并为每个分块打上版本、哈希与时间戳
	newVersion := existingVersion + 1
	records := buildRecords(req, newVersion)

	// 4. 先删后写：分块边界可能变化，旧 ID 不一定出现在新集合中
	if err := s.store.Delete(ctx, vectorstore.Filter{DocumentID: req.DocumentID}); err != nil {
		log.Errorf("[IngestService] 删除旧分块失败, document_id: %s, error: %v", req.DocumentID, err)
		return nil, fmt.Errorf("删除旧分块失败: %w", err)
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		log.Errorf("[IngestService] 写入新分块失败, document_id: %s, version: %d, error: %v", req.DocumentID, newVersion, err)
		return nil, fmt.Errorf("写入新分块失败: %w", err)
	}
	log.Infof("[IngestService] 文档入库成功, document_id: %s, version: %d, chunks: %d", req.DocumentID, newVersion, len(records))

	s.recordVersion(req, newVersion, len(records))

	return &model.IngestResponse{
		Status:       model.StatusOK,
		Ingested:     len(records),
		DocumentID:   req.DocumentID,
		Version:      &newVersion,
		DocHash:      newHash,
		LastModified: req.Modified(),
	}, nil
}

// currentState 读取第一条现有记录的 doc_hash 与 version；version 缺失视为 0（从未入库）。
func currentState(existing []vectorstore.Record) (string, int) {
	if len(existing) == 0 {
		return "", 0
	}
	meta := existing[0].Metadata
	hash, _ := model.MetadataString(meta, model.MetaDocHash)
	version, _ := model.MetadataInt(meta, model.MetaVersion)
	return hash, version
}

func buildRecords(req *model.IngestRequest, version int) []vectorstore.Record {
	records := make([]vectorstore.Record, 0, len(req.Chunks))
	for _, c := range req.Chunks {
		meta := model.CopyMetadata(c.Metadata)
		if _, ok := meta[model.MetaDocumentID]; !ok {
			meta[model.MetaDocumentID] = req.DocumentID
		}
		meta[model.MetaVersion] = version
		if h := req.Hash(); h != "" {
			meta[model.MetaDocHash] = h
		}
		if lm := req.Modified(); lm != "" {
			meta[model.MetaLastModified] = lm
		}
		records = append(records, vectorstore.Record{ID: c.ID, Text: c.Text, Metadata: meta})
	}
	return records
}

func validateChunks(chunks []model.Chunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunks[%d].id 不能为空", ErrInvalidRequest, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: 重复的分块 id %q", ErrInvalidRequest, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// recordVersion 追加版本台账，失败只记日志，不影响入库结果。
func (s *ingestService) recordVersion(req *model.IngestRequest, version, chunkCount int) {
	if s.ledger == nil {
		return
	}
	err := s.ledger.Create(&model.DocumentVersion{
		DocumentID:   req.DocumentID,
		Version:      version,
		DocHash:      req.Hash(),
		LastModified: req.Modified(),
		ChunkCount:   chunkCount,
	})
	if err != nil {
		log.Warnf("[IngestService] 写入版本台账失败, document_id: %s, version: %d, error: %v", req.DocumentID, version, err)
	}
}
