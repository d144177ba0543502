package model

// EsChunk 定义了存储在 Elasticsearch 中的分块文档结构。
// document_id 与 chunk_index 从 metadata 中提升为顶层字段，便于 term 过滤与排序。
type EsChunk struct {
	ID           string                 `json:"id"`
	DocumentID   string                 `json:"document_id"`
	ChunkIndex   int                    `json:"chunk_index"`
	Text         string                 `json:"text"`
	Vector       []float32              `json:"vector,omitempty"` // 文本内容的向量表示，未配置 embedding 时为空
	ModelVersion string                 `json:"model_version,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
}
