// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"kb-rag-go/internal/config"
	"kb-rag-go/pkg/log"
)

// ErrEmptyEmbedding is returned when the API answers without vectors.
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new OpenAI-compatible embedding client.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether an embedding endpoint is configured.
func Enabled(cfg config.EmbeddingConfig) bool {
	return cfg.BaseURL != "" && cfg.Model != ""
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) Model() string   { return c.cfg.Model }
func (c *openAICompatibleClient) Dimensions() int { return c.cfg.Dimensions }

// CreateEmbedding returns the vector for a single text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings calls the OpenAI-compatible API once for a batch of texts.
// The result is aligned with texts by the index field of each item.
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, inputs: %d", c.cfg.Model, len(texts))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Data) != len(texts) {
		log.Warnf("[EmbeddingClient] Embedding API 返回的向量数量不匹配, want: %d, got: %d", len(texts), len(embeddingResp.Data))
		return nil, ErrEmptyEmbedding
	}

	vectors := make([][]float32, len(texts))
	for i, d := range embeddingResp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vectors[idx] = d.Embedding
	}
	log.Infof("[EmbeddingClient] 成功获取向量, 数量: %d, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
