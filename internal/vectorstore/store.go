// Package vectorstore 定义了向量集合的最小能力接口：get / delete / upsert / query。
// 任何具体实现（Elasticsearch、内存）都可以满足它，入库协调器与检索网关只依赖这个接口。
package vectorstore

import "context"

// Record 是集合中的一条分块记录。
type Record struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
}

// Hit 是相似度检索命中的一条记录，按集合自身的相似度排序返回。
type Hit struct {
	Record
	Score float64
}

// Filter 选择 metadata.document_id 等于 DocumentID 的记录。
type Filter struct {
	DocumentID string
}

// Store 是向量集合能力接口。
type Store interface {
	// Name 返回集合名称，用于健康检查。
	Name() string
	// Ping 检查集合是否可用。
	Ping(ctx context.Context) error
	// Get 返回满足过滤条件的记录，顺序为集合原生顺序。
	Get(ctx context.Context, filter Filter) ([]Record, error)
	// Delete 删除满足过滤条件的全部记录。
	Delete(ctx context.Context, filter Filter) error
	// Upsert 按 ID 插入或覆盖记录。
	Upsert(ctx context.Context, records []Record) error
	// Query 返回与 text 最相似的至多 k 条记录。
	Query(ctx context.Context, text string, k int) ([]Hit, error)
}
