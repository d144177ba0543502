// Package model 定义了 API 线协议与持久化使用的 Go 结构体。
package model

// 入库结果状态。
const (
	StatusOK               = "ok"
	StatusSkippedUnchanged = "skipped_unchanged"
	StatusNoChunks         = "no_chunks"
	// StatusQueued 只出现在 indexer 侧：请求已写入 Kafka，尚未被消费。
	StatusQueued = "queued"
)

// 分块 metadata 中使用的键。
const (
	MetaPath         = "path"
	MetaSource       = "source"
	MetaFileType     = "file_type"
	MetaChunkIndex   = "chunk_index"
	MetaChunkCount   = "chunk_count"
	MetaDocumentID   = "document_id"
	MetaVersion      = "version"
	MetaDocHash      = "doc_hash"
	MetaLastModified = "last_modified"
)

// Chunk 是一个可检索的文本单元。
type Chunk struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// IngestRequest 是一次入库请求：同一文档在一次扫描中产生的全部分块。
type IngestRequest struct {
	DocumentID   string  `json:"document_id"`
	DocHash      *string `json:"doc_hash"`
	LastModified *string `json:"last_modified"`
	Chunks       []Chunk `json:"chunks"`
}

// Hash 返回 doc_hash，未提供时为空串。
func (r *IngestRequest) Hash() string {
	if r.DocHash == nil {
		return ""
	}
	return *r.DocHash
}

// Modified 返回 last_modified，未提供时为空串。
func (r *IngestRequest) Modified() string {
	if r.LastModified == nil {
		return ""
	}
	return *r.LastModified
}

// IngestResponse 是 /ingest 的响应体。
type IngestResponse struct {
	Status       string `json:"status"`
	Ingested     int    `json:"ingested"`
	DocumentID   string `json:"document_id"`
	Version      *int   `json:"version,omitempty"`
	DocHash      string `json:"doc_hash,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// StringPtr 便于构造可空字段。
func StringPtr(s string) *string {
	return &s
}
