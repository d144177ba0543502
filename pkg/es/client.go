// Package es 提供了基于 Elasticsearch 的向量集合实现。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"kb-rag-go/internal/config"
	"kb-rag-go/internal/model"
	"kb-rag-go/internal/vectorstore"
	"kb-rag-go/pkg/log"
)

// maxChunksPerDocument 是按 document_id 读取分块时的上限。
const maxChunksPerDocument = 10000

// Embedder 为分块文本生成向量。为 nil 时集合退化为全文检索。
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Store 把一个 Elasticsearch 索引包装成 vectorstore.Store。
type Store struct {
	client   *elasticsearch.Client
	index    string
	embedder Embedder
}

var _ vectorstore.Store = (*Store)(nil)

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	}
	if esCfg.InsecureSkipVerify {
		cfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return elasticsearch.NewClient(cfg)
}

// NewStore 创建集合。embedder 可为 nil。
func NewStore(client *elasticsearch.Client, index string, embedder Embedder) *Store {
	return &Store{client: client, index: index, embedder: embedder}
}

// Name 返回索引名。
func (s *Store) Name() string { return s.index }

// Ping 检查集群是否可达。
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping 返回状态码 %d", res.StatusCode)
	}
	return nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", s.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", s.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping, err := json.Marshal(s.mapping())
	if err != nil {
		return err
	}
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", s.index)
	return nil
}

// mapping 中 metadata 只存储不索引，过滤与排序走提升后的顶层字段。
func (s *Store) mapping() map[string]interface{} {
	props := map[string]interface{}{
		"id":            map[string]interface{}{"type": "keyword"},
		"document_id":   map[string]interface{}{"type": "keyword"},
		"chunk_index":   map[string]interface{}{"type": "integer"},
		"text":          map[string]interface{}{"type": "text"},
		"model_version": map[string]interface{}{"type": "keyword"},
		"metadata":      map[string]interface{}{"type": "object", "enabled": false},
	}
	if s.embedder != nil {
		props["vector"] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       s.embedder.Dimensions(),
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]interface{}{"mappings": map[string]interface{}{"properties": props}}
}

// Get 返回该文档的全部分块，按 chunk_index 升序。
func (s *Store) Get(ctx context.Context, filter vectorstore.Filter) ([]vectorstore.Record, error) {
	body := map[string]interface{}{
		"query": termQuery(filter),
		"sort":  []interface{}{map[string]interface{}{"chunk_index": "asc"}},
		"size":  maxChunksPerDocument,
	}
	hits, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	records := make([]vectorstore.Record, 0, len(hits))
	for _, h := range hits {
		records = append(records, h.Record)
	}
	return records, nil
}

// Delete 删除该文档的全部分块，并等待刷新后返回。
func (s *Store) Delete(ctx context.Context, filter vectorstore.Filter) error {
	body, err := json.Marshal(map[string]interface{}{"query": termQuery(filter)})
	if err != nil {
		return err
	}
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
		s.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		log.Errorf("[EsStore] 按文档删除分块失败, document_id: %s, response: %s", filter.DocumentID, res.String())
		return fmt.Errorf("delete_by_query 返回状态码 %d", res.StatusCode)
	}
	return nil
}

// Upsert 通过一次 bulk 请求写入全部分块，_id 即分块 ID。
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]model.EsChunk, 0, len(records))
	for _, r := range records {
		docs = append(docs, toEsChunk(r))
	}
	if s.embedder != nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text
		}
		vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return fmt.Errorf("生成向量失败: %w", err)
		}
		for i := range docs {
			docs[i].Vector = vectors[i]
			docs[i].ModelVersion = s.embedder.Model()
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": s.index, "_id": d.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(d); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(
		&buf,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.index),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[EsStore] bulk 写入失败: %s", res.String())
		return fmt.Errorf("bulk 返回状态码 %d", res.StatusCode)
	}
	return checkBulkResponse(res.Body)
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

func checkBulkResponse(body io.Reader) error {
	var br bulkResponse
	if err := json.NewDecoder(body).Decode(&br); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if !br.Errors {
		return nil
	}
	for _, item := range br.Items {
		for _, result := range item {
			if result.Status >= 300 {
				return fmt.Errorf("分块 %s 写入失败 [%d]: %s", result.ID, result.Status, string(result.Error))
			}
		}
	}
	return errors.New("bulk 写入存在失败的分块")
}

// Query 配置了 embedder 时做 kNN 检索，否则对 text 做全文匹配。
func (s *Store) Query(ctx context.Context, text string, k int) ([]vectorstore.Hit, error) {
	var body map[string]interface{}
	if s.embedder != nil {
		vectors, err := s.embedder.CreateEmbeddings(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("生成查询向量失败: %w", err)
		}
		candidates := k * 10
		if candidates < 100 {
			candidates = 100
		}
		body = map[string]interface{}{
			"knn": map[string]interface{}{
				"field":          "vector",
				"query_vector":   vectors[0],
				"k":              k,
				"num_candidates": candidates,
			},
			"size": k,
		}
	} else {
		body = map[string]interface{}{
			"query": map[string]interface{}{"match": map[string]interface{}{"text": text}},
			"size":  k,
		}
	}
	body["_source"] = map[string]interface{}{"excludes": []string{"vector"}}
	return s.search(ctx, body)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Score  float64       `json:"_score"`
			Source model.EsChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Store) search(ctx context.Context, body map[string]interface{}) ([]vectorstore.Hit, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	// 索引尚未创建等价于空集合
	if res.StatusCode == http.StatusNotFound {
		return []vectorstore.Hit{}, nil
	}
	if res.IsError() {
		log.Errorf("[EsStore] 检索失败: %s", res.String())
		return nil, fmt.Errorf("search 返回状态码 %d", res.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}
	hits := make([]vectorstore.Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		id := h.Source.ID
		if id == "" {
			id = h.ID
		}
		meta := h.Source.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		hits = append(hits, vectorstore.Hit{
			Record: vectorstore.Record{ID: id, Text: h.Source.Text, Metadata: meta},
			Score:  h.Score,
		})
	}
	return hits, nil
}

func termQuery(filter vectorstore.Filter) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{"document_id": filter.DocumentID}}
}

func toEsChunk(r vectorstore.Record) model.EsChunk {
	docID, _ := model.MetadataString(r.Metadata, model.MetaDocumentID)
	idx, _ := model.MetadataInt(r.Metadata, model.MetaChunkIndex)
	return model.EsChunk{
		ID:         r.ID,
		DocumentID: docID,
		ChunkIndex: idx,
		Text:       r.Text,
		Metadata:   r.Metadata,
	}
}
