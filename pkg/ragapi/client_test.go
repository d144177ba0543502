package ragapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-rag-go/internal/config"
	"kb-rag-go/internal/model"
)

func TestClient_Ingest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ingest", r.URL.Path)
		var req model.IngestRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sops/a.txt", req.DocumentID)
		assert.Equal(t, "H1", req.Hash())
		v := 1
		_ = json.NewEncoder(w).Encode(model.IngestResponse{Status: model.StatusOK, Ingested: len(req.Chunks), DocumentID: req.DocumentID, Version: &v})
	}))
	defer srv.Close()

	c := NewClient(config.RAGAPIConfig{BaseURL: srv.URL + "/"})
	resp, err := c.Ingest(context.Background(), &model.IngestRequest{
		DocumentID: "sops/a.txt",
		DocHash:    model.StringPtr("H1"),
		Chunks:     []model.Chunk{{ID: "sops/a.txt#chunk-0", Text: "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, 1, resp.Ingested)
	assert.Equal(t, 1, *resp.Version)
}

func TestClient_StatusErrors(t *testing.T) {
	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"document_id 不能为空"}`))
	}))
	defer srv.Close()
	c := NewClient(config.RAGAPIConfig{BaseURL: srv.URL})

	_, err := c.Ingest(context.Background(), &model.IngestRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.False(t, se.Retryable())

	code = http.StatusServiceUnavailable
	_, err = c.Ingest(context.Background(), &model.IngestRequest{})
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Retryable())
}

func TestClient_QueryAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/query":
			var req model.QueryRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 3, *req.TopK)
			_, _ = w.Write([]byte(`{"results":[{"id":"sops/a.txt#chunk-0","text":"pump","metadata":{},"version":2,"last_modified":null}]}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok","collection":"tli_kb","available":true}`))
		}
	}))
	defer srv.Close()
	c := NewClient(config.RAGAPIConfig{BaseURL: srv.URL})

	results, err := c.Query(context.Background(), "pump", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, *results[0].Version)
	assert.Nil(t, results[0].LastModified)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Available)
	assert.Equal(t, "tli_kb", health.Collection)
}
