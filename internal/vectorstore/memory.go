package vectorstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"kb-rag-go/internal/model"
)

// MemoryStore 是进程内的集合实现，用于本地开发与测试。
// 相似度使用词项重叠率，分数相同时保持插入顺序。
type MemoryStore struct {
	name string

	mu      sync.RWMutex
	records map[string]Record // chunkID -> record
	order   []string          // 插入顺序
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory collection.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Get 返回 document_id 匹配的记录，按插入顺序。
func (s *MemoryStore) Get(ctx context.Context, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, id := range s.order {
		r := s.records[id]
		if matches(r, filter) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// Delete 删除 document_id 匹配的记录。
func (s *MemoryStore) Delete(ctx context.Context, filter Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if matches(s.records[id], filter) {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

// Upsert 覆盖已存在的 ID（保持原位置），新 ID 追加到末尾。
func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = clone(r)
	}
	return nil
}

// Query 按词项重叠率打分，返回前 k 条。
func (s *MemoryStore) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := tokenize(text)
	hits := make([]Hit, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		hits = append(hits, Hit{Record: clone(r), Score: overlap(terms, tokenize(r.Text))})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len 返回集合中的记录数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func matches(r Record, f Filter) bool {
	id, _ := model.MetadataString(r.Metadata, model.MetaDocumentID)
	return id == f.DocumentID
}

func clone(r Record) Record {
	r.Metadata = model.CopyMetadata(r.Metadata)
	return r
}

func tokenize(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[f] = struct{}{}
	}
	return set
}

func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	n := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			n++
		}
	}
	return float64(n) / float64(len(query))
}
