package service

import (
	"context"
	"errors"
	"fmt"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/vectorstore"
	"kb-rag-go/pkg/log"
)

// ErrInvalidTopK 表示 top_k <= 0。
var ErrInvalidTopK = errors.New("top_k must be > 0")

// QueryService 接口定义了相似度检索操作。
type QueryService interface {
	Query(ctx context.Context, query string, topK int) ([]model.QueryResult, error)
}

type queryService struct {
	store vectorstore.Store
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(store vectorstore.Store) QueryService {
	return &queryService{store: store}
}

// Query 把查询原样转发给集合，并把命中结果整理成稳定的响应结构。
// 结果顺序即集合返回的相似度顺序；空集合返回空切片而不是错误。
func (s *queryService) Query(ctx context.Context, query string, topK int) ([]model.QueryResult, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query 不能为空", ErrInvalidRequest)
	}
	log.Infof("[QueryService] 开始检索, query: '%s', topK: %d", query, topK)

	hits, err := s.store.Query(ctx, query, topK)
	if err != nil {
		log.Errorf("[QueryService] 检索失败, error: %v", err)
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	results := make([]model.QueryResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toQueryResult(hit))
	}
	log.Infof("[QueryService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

func toQueryResult(hit vectorstore.Hit) model.QueryResult {
	meta := hit.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	result := model.QueryResult{
		ID:       hit.ID,
		Text:     hit.Text,
		Metadata: meta,
	}
	if v, ok := model.MetadataInt(meta, model.MetaVersion); ok {
		result.Version = &v
	}
	if lm, ok := model.MetadataString(meta, model.MetaLastModified); ok {
		result.LastModified = &lm
	}
	return result
}
