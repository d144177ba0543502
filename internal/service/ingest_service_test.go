package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-go/internal/lock"
	"kb-rag-go/internal/model"
	"kb-rag-go/internal/vectorstore"
)

const docID = "sops/a.txt"

func TestIngest_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	svc := NewIngestService(store, lock.NewKeyedMutex(), nil)

	// 首次入库：3 个分块，版本 1
	resp, err := svc.Ingest(ctx, makeRequest(docID, "H1", "one", "two", "three"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 3, resp.Ingested)
	require.NotNil(t, resp.Version)
	assert.Equal(t, 1, *resp.Version)
	assert.Equal(t, "H1", resp.DocHash)
	assert.Equal(t, "2025-12-01T21:30:00Z", resp.LastModified)

	// 相同内容：跳过，只读不写
	writesBefore := store.writes()
	resp, err = svc.Ingest(ctx, makeRequest(docID, "H1", "one", "two", "three"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkippedUnchanged, resp.Status)
	assert.Equal(t, 0, resp.Ingested)
	assert.Nil(t, resp.Version)
	assert.Equal(t, writesBefore, store.writes())

	// 内容变化且分块数减少：版本 2，旧分块全部消失
	resp, err = svc.Ingest(ctx, makeRequest(docID, "H2", "uno", "dos"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 2, resp.Ingested)
	assert.Equal(t, 2, *resp.Version)

	records, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)
	assert.Equal(t, []string{docID + "#chunk-0", docID + "#chunk-1"}, chunkIDs(records))
	for _, r := range records {
		assert.Equal(t, 2, r.Metadata[model.MetaVersion])
		assert.Equal(t, "H2", r.Metadata[model.MetaDocHash])
	}
}

func TestIngest_IdempotentLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	svc := NewIngestService(store, nil, nil)

	_, err := svc.Ingest(ctx, makeRequest(docID, "H1", "a", "b"))
	require.NoError(t, err)
	before, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)

	resp, err := svc.Ingest(ctx, makeRequest(docID, "H1", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkippedUnchanged, resp.Status)

	after, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngest_VersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	svc := NewIngestService(newSpyStore(), nil, nil)

	for n := 1; n <= 5; n++ {
		resp, err := svc.Ingest(ctx, makeRequest(docID, fmt.Sprintf("H%d", n), fmt.Sprintf("content %d", n)))
		require.NoError(t, err)
		require.NotNil(t, resp.Version)
		assert.Equal(t, n, *resp.Version)
	}
}

func TestIngest_LegacyRecordsWithoutHashAlwaysReplace(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	// 早期数据：有版本但没有 doc_hash
	require.NoError(t, store.MemoryStore.Upsert(ctx, []vectorstore.Record{{
		ID:       docID + "#chunk-0",
		Text:     "legacy",
		Metadata: map[string]interface{}{model.MetaDocumentID: docID, model.MetaVersion: 3},
	}}))
	svc := NewIngestService(store, nil, nil)

	resp, err := svc.Ingest(ctx, makeRequest(docID, "", "legacy"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 4, *resp.Version)

	// 新请求也没有哈希：每次都替换并升版本
	resp, err = svc.Ingest(ctx, makeRequest(docID, "", "legacy"))
	require.NoError(t, err)
	assert.Equal(t, 5, *resp.Version)

	records, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].Metadata, model.MetaDocHash)
}

func TestIngest_MissingHashOnNewRequestReplaces(t *testing.T) {
	ctx := context.Background()
	svc := NewIngestService(newSpyStore(), nil, nil)

	_, err := svc.Ingest(ctx, makeRequest(docID, "H1", "x"))
	require.NoError(t, err)
	resp, err := svc.Ingest(ctx, makeRequest(docID, "", "x"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 2, *resp.Version)
}

func TestIngest_NoChunksTouchesNothing(t *testing.T) {
	store := newSpyStore()
	locker := &countingLocker{}
	svc := NewIngestService(store, locker, nil)

	resp, err := svc.Ingest(context.Background(), &model.IngestRequest{DocumentID: docID})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoChunks, resp.Status)
	assert.Equal(t, 0, resp.Ingested)
	assert.Equal(t, 0, store.gets)
	assert.Equal(t, 0, store.writes())
	assert.Equal(t, 0, locker.locked)
}

func TestIngest_InvalidRequests(t *testing.T) {
	dup := makeRequest(docID, "H", "a", "b")
	dup.Chunks[1].ID = dup.Chunks[0].ID
	noID := makeRequest(docID, "H", "a")
	noID.Chunks[0].ID = ""

	tests := []struct {
		name string
		req  *model.IngestRequest
	}{
		{"nil request", nil},
		{"missing document id", makeRequest("", "H", "a")},
		{"duplicate chunk ids", dup},
		{"empty chunk id", noID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newSpyStore()
			svc := NewIngestService(store, nil, nil)
			_, err := svc.Ingest(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, 0, store.gets)
			assert.Equal(t, 0, store.writes())
		})
	}
}

func TestIngest_MetadataStamping(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	svc := NewIngestService(store, nil, nil)

	req := makeRequest(docID, "H1", "a", "b")
	req.Chunks[1].Metadata[model.MetaDocumentID] = docID // 已有值不会被覆盖
	req.Chunks[0].Metadata[model.MetaVersion] = 42       // 版本总是由服务端决定
	_, err := svc.Ingest(ctx, req)
	require.NoError(t, err)

	records, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, r := range records {
		assert.Equal(t, docID, r.Metadata[model.MetaDocumentID])
		assert.Equal(t, 1, r.Metadata[model.MetaVersion])
		assert.Equal(t, "H1", r.Metadata[model.MetaDocHash])
		assert.Equal(t, "2025-12-01T21:30:00Z", r.Metadata[model.MetaLastModified])
		assert.Equal(t, i, r.Metadata[model.MetaChunkIndex])
		assert.Equal(t, 2, r.Metadata[model.MetaChunkCount])
	}
	// 请求中的 metadata 不被修改
	assert.Equal(t, 42, req.Chunks[0].Metadata[model.MetaVersion])
}

func TestIngest_StoreFailures(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("lookup failure writes nothing", func(t *testing.T) {
		store := newSpyStore()
		store.getErr = boom
		_, err := NewIngestService(store, nil, nil).Ingest(context.Background(), makeRequest(docID, "H", "a"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, store.writes())
	})

	t.Run("delete failure skips upsert", func(t *testing.T) {
		store := newSpyStore()
		store.deleteErr = boom
		_, err := NewIngestService(store, nil, nil).Ingest(context.Background(), makeRequest(docID, "H", "a"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, store.upserts)
	})

	t.Run("upsert failure is reported and retry recovers", func(t *testing.T) {
		ctx := context.Background()
		store := newSpyStore()
		svc := NewIngestService(store, nil, nil)
		_, err := svc.Ingest(ctx, makeRequest(docID, "H1", "a", "b"))
		require.NoError(t, err)

		store.upsertErr = boom
		_, err = svc.Ingest(ctx, makeRequest(docID, "H2", "c"))
		assert.ErrorIs(t, err, boom)

		// 调用方重试：集合此时为空，重新入库得到版本 1 且数据完整
		store.upsertErr = nil
		resp, err := svc.Ingest(ctx, makeRequest(docID, "H2", "c"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusOK, resp.Status)
		records, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
		require.NoError(t, err)
		assert.Equal(t, []string{docID + "#chunk-0"}, chunkIDs(records))
	})

	t.Run("lock failure", func(t *testing.T) {
		store := newSpyStore()
		_, err := NewIngestService(store, &countingLocker{err: boom}, nil).Ingest(context.Background(), makeRequest(docID, "H", "a"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, store.gets)
	})
}

func TestIngest_LockHeldAroundReplace(t *testing.T) {
	locker := &countingLocker{}
	svc := NewIngestService(newSpyStore(), locker, nil)

	_, err := svc.Ingest(context.Background(), makeRequest(docID, "H", "a"))
	require.NoError(t, err)
	_, err = svc.Ingest(context.Background(), makeRequest(docID, "H", "a"))
	require.NoError(t, err)

	assert.Equal(t, 2, locker.locked)
	assert.Equal(t, 2, locker.release)
}

func TestIngest_Ledger(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	svc := NewIngestService(newSpyStore(), nil, ledger)

	_, err := svc.Ingest(ctx, makeRequest(docID, "H1", "a", "b"))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, makeRequest(docID, "H1", "a", "b")) // 跳过不记台账
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, makeRequest(docID, "H2", "c"))
	require.NoError(t, err)

	require.Len(t, ledger.versions, 2)
	assert.Equal(t, 1, ledger.versions[0].Version)
	assert.Equal(t, 2, ledger.versions[0].ChunkCount)
	assert.Equal(t, 2, ledger.versions[1].Version)
	assert.Equal(t, "H2", ledger.versions[1].DocHash)

	// 台账故障不影响入库
	ledger.err = errors.New("mysql down")
	resp, err := svc.Ingest(ctx, makeRequest(docID, "H3", "d"))
	require.NoError(t, err)
	assert.Equal(t, 3, *resp.Version)
}

func TestIngest_ConcurrentSameDocumentStaysConsistent(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	svc := NewIngestService(store, lock.NewKeyedMutex(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			texts := make([]string, i%4+1)
			for j := range texts {
				texts[j] = fmt.Sprintf("w%d-%d", i, j)
			}
			_, err := svc.Ingest(ctx, makeRequest(docID, fmt.Sprintf("H%d", i), texts...))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := store.Get(ctx, vectorstore.Filter{DocumentID: docID})
	require.NoError(t, err)
	require.NotEmpty(t, records)

	// 最终状态来自同一次写入：版本一致、分块数等于 chunk_count、ID 连续
	version := records[0].Metadata[model.MetaVersion]
	count := records[0].Metadata[model.MetaChunkCount]
	assert.Equal(t, 16, version)
	assert.Equal(t, count, len(records))
	for i, r := range records {
		assert.Equal(t, version, r.Metadata[model.MetaVersion])
		assert.Equal(t, fmt.Sprintf("%s#chunk-%d", docID, i), r.ID)
	}
}

func TestIngest_DifferentDocumentsIndependent(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	svc := NewIngestService(store, nil, nil)

	_, err := svc.Ingest(ctx, makeRequest("sops/a.txt", "H", "a1", "a2"))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, makeRequest("sops/b.txt", "H", "b1"))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, makeRequest("sops/a.txt", "H2", "a3"))
	require.NoError(t, err)

	b, err := store.Get(ctx, vectorstore.Filter{DocumentID: "sops/b.txt"})
	require.NoError(t, err)
	assert.Len(t, b, 1)
	assert.Equal(t, 3, store.Len())
}
