package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-go/internal/model"
	"kb-rag-go/internal/service"
	"kb-rag-go/internal/vectorstore"
)

// brokenStore 的所有操作都失败。
type brokenStore struct {
	*vectorstore.MemoryStore
}

var errDown = errors.New("connection refused")

func (brokenStore) Ping(context.Context) error { return errDown }
func (brokenStore) Get(context.Context, vectorstore.Filter) ([]vectorstore.Record, error) {
	return nil, errDown
}
func (brokenStore) Query(context.Context, string, int) ([]vectorstore.Hit, error) {
	return nil, errDown
}

func newRouter(store vectorstore.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/ingest", NewIngestHandler(service.NewIngestService(store, nil, nil)).Ingest)
	r.POST("/query", NewQueryHandler(service.NewQueryService(store), 5).Query)
	r.GET("/health", NewHealthHandler(store).Health)
	docs := NewDocumentHandler(service.NewDocumentService(store, nil))
	r.GET("/documents/describe", docs.Describe)
	r.GET("/documents/versions", docs.ListVersions)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func ingestBody(hash string, texts ...string) map[string]interface{} {
	chunks := make([]map[string]interface{}, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, map[string]interface{}{
			"id":       "sops/a.txt#chunk-" + strconv.Itoa(i),
			"text":     text,
			"metadata": map[string]interface{}{"chunk_index": i, "chunk_count": len(texts), "source": "sops"},
		})
	}
	return map[string]interface{}{
		"document_id":   "sops/a.txt",
		"doc_hash":      hash,
		"last_modified": "2025-12-01T21:30:00Z",
		"chunks":        chunks,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestIngestEndpoint_EndToEnd(t *testing.T) {
	r := newRouter(vectorstore.NewMemoryStore("tli_kb"))

	w := doJSON(t, r, http.MethodPost, "/ingest", ingestBody("H1", "pump one", "pump two", "pump three"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.IngestResponse
	decode(t, w, &resp)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 3, resp.Ingested)
	assert.Equal(t, 1, *resp.Version)

	w = doJSON(t, r, http.MethodPost, "/ingest", ingestBody("H1", "pump one", "pump two", "pump three"))
	require.Equal(t, http.StatusOK, w.Code)
	var skipped map[string]interface{}
	decode(t, w, &skipped)
	assert.Equal(t, model.StatusSkippedUnchanged, skipped["status"])
	assert.Equal(t, float64(0), skipped["ingested"])
	assert.NotContains(t, skipped, "version")

	w = doJSON(t, r, http.MethodPost, "/ingest", ingestBody("H2", "pump uno", "pump dos"))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Ingested)
	assert.Equal(t, 2, *resp.Version)

	w = doJSON(t, r, http.MethodPost, "/query", map[string]interface{}{"query": "pump", "top_k": 10})
	require.Equal(t, http.StatusOK, w.Code)
	var qr model.QueryResponse
	decode(t, w, &qr)
	ids := make([]string, 0, len(qr.Results))
	for _, res := range qr.Results {
		ids = append(ids, res.ID)
		assert.Equal(t, 2, *res.Version)
		assert.Equal(t, "2025-12-01T21:30:00Z", *res.LastModified)
	}
	assert.ElementsMatch(t, []string{"sops/a.txt#chunk-0", "sops/a.txt#chunk-1"}, ids)
}

func TestIngestEndpoint_Errors(t *testing.T) {
	r := newRouter(vectorstore.NewMemoryStore("tli_kb"))

	w := doJSON(t, r, http.MethodPost, "/ingest", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/ingest", map[string]interface{}{"chunks": []interface{}{map[string]interface{}{"id": "x", "text": "y"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/ingest", map[string]interface{}{"document_id": "sops/a.txt", "chunks": []interface{}{}})
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.IngestResponse
	decode(t, w, &resp)
	assert.Equal(t, model.StatusNoChunks, resp.Status)

	broken := newRouter(brokenStore{vectorstore.NewMemoryStore("tli_kb")})
	w = doJSON(t, broken, http.MethodPost, "/ingest", ingestBody("H1", "a"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueryEndpoint(t *testing.T) {
	r := newRouter(vectorstore.NewMemoryStore("tli_kb"))

	w := doJSON(t, r, http.MethodPost, "/query", map[string]interface{}{"query": "anything"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/query", map[string]interface{}{"query": "x", "top_k": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/query", map[string]interface{}{"query": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/query", "[]")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	broken := newRouter(brokenStore{vectorstore.NewMemoryStore("tli_kb")})
	w = doJSON(t, broken, http.MethodPost, "/query", map[string]interface{}{"query": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	w := doJSON(t, newRouter(vectorstore.NewMemoryStore("tli_kb")), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","collection":"tli_kb","available":true}`, w.Body.String())

	w = doJSON(t, newRouter(brokenStore{vectorstore.NewMemoryStore("tli_kb")}), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"degraded","collection":"tli_kb","available":false}`, w.Body.String())
}

func TestDocumentEndpoints(t *testing.T) {
	r := newRouter(vectorstore.NewMemoryStore("tli_kb"))
	w := doJSON(t, r, http.MethodPost, "/ingest", ingestBody("H1", "a", "b"))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/documents/describe?document_id="+url.QueryEscape("sops/a.txt"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data service.DocumentInfo `json:"data"`
	}
	decode(t, w, &body)
	assert.Equal(t, []string{"sops/a.txt#chunk-0", "sops/a.txt#chunk-1"}, body.Data.ChunkIDs)
	assert.Equal(t, 1, *body.Data.Version)

	w = doJSON(t, r, http.MethodGet, "/documents/describe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未配置台账
	w = doJSON(t, r, http.MethodGet, "/documents/versions?document_id=sops/a.txt", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
