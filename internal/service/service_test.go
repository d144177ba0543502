package service

import (
	"context"
	"errors"
	"sync"

	"kb-rag-go/internal/identity"
	"kb-rag-go/internal/model"
	"kb-rag-go/internal/vectorstore"
)

// spyStore 包装 MemoryStore，记录调用次数并可注入错误。
type spyStore struct {
	*vectorstore.MemoryStore

	mu                                sync.Mutex
	gets, deletes, upserts, queries   int
	getErr, deleteErr, upsertErr, qErr error
	hits                              []vectorstore.Hit // 非 nil 时 Query 直接返回
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: vectorstore.NewMemoryStore("tli_kb")}
}

func (s *spyStore) Get(ctx context.Context, f vectorstore.Filter) ([]vectorstore.Record, error) {
	s.mu.Lock()
	s.gets++
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, f)
}

func (s *spyStore) Delete(ctx context.Context, f vectorstore.Filter) error {
	s.mu.Lock()
	s.deletes++
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, f)
}

func (s *spyStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	s.upserts++
	err := s.upsertErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Upsert(ctx, records)
}

func (s *spyStore) Query(ctx context.Context, text string, k int) ([]vectorstore.Hit, error) {
	s.mu.Lock()
	s.queries++
	err, hits := s.qErr, s.hits
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hits != nil {
		return hits, nil
	}
	return s.MemoryStore.Query(ctx, text, k)
}

func (s *spyStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes + s.upserts
}

// fakeLedger 是内存版的版本台账。
type fakeLedger struct {
	mu       sync.Mutex
	versions []model.DocumentVersion
	err      error
}

func (l *fakeLedger) Create(v *model.DocumentVersion) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.versions = append(l.versions, *v)
	return nil
}

func (l *fakeLedger) FindByDocumentID(documentID string) ([]model.DocumentVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	var out []model.DocumentVersion
	for _, v := range l.versions {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (l *fakeLedger) FindLatest(documentID string) (*model.DocumentVersion, error) {
	all, err := l.FindByDocumentID(documentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.New("record not found")
	}
	return &all[len(all)-1], nil
}

// countingLocker 记录加锁次数。
type countingLocker struct {
	mu      sync.Mutex
	locked  int
	release int
	err     error
}

func (l *countingLocker) Lock(_ context.Context, _ string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked++
	return func() {
		l.mu.Lock()
		l.release++
		l.mu.Unlock()
	}, nil
}

// makeRequest 构造与 indexer 产出一致的入库请求。
func makeRequest(documentID, hash string, texts ...string) *model.IngestRequest {
	req := &model.IngestRequest{
		DocumentID:   documentID,
		LastModified: model.StringPtr("2025-12-01T21:30:00Z"),
	}
	if hash != "" {
		req.DocHash = model.StringPtr(hash)
	}
	for i, text := range texts {
		req.Chunks = append(req.Chunks, model.Chunk{
			ID:   identity.ChunkID(documentID, i),
			Text: text,
			Metadata: map[string]interface{}{
				model.MetaPath:       "a.txt",
				model.MetaSource:     "sops",
				model.MetaFileType:   "txt",
				model.MetaChunkIndex: i,
				model.MetaChunkCount: len(texts),
			},
		})
	}
	return req
}

func chunkIDs(records []vectorstore.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
