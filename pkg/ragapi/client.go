// Package ragapi 是 RAG API 的 HTTP 客户端，indexer 用它作为默认的入库 Sink。
package ragapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kb-rag-go/internal/config"
	"kb-rag-go/internal/model"
	"kb-rag-go/pkg/log"
)

// StatusError 表示 API 返回了非 200 响应。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rag api returned %d: %s", e.Code, e.Body)
}

// Retryable 只有 5xx 与 429 值得重试，其余 4xx 是请求本身的问题。
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client 调用 /ingest、/query、/health。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建一个新的 API 客户端。
func NewClient(cfg config.RAGAPIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Ingest 提交一个文档的全部分块。
func (c *Client) Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error) {
	var resp model.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", req, &resp); err != nil {
		return nil, err
	}
	log.Infof("[RAGAPIClient] 入库完成, document_id: %s, status: %s, ingested: %d", resp.DocumentID, resp.Status, resp.Ingested)
	return &resp, nil
}

// Query 执行一次检索。
func (c *Client) Query(ctx context.Context, query string, topK int) ([]model.QueryResult, error) {
	var resp model.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/query", model.QueryRequest{Query: query, TopK: &topK}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Health 读取服务健康状态。
func (c *Client) Health(ctx context.Context) (*model.HealthResponse, error) {
	var resp model.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("调用 RAG API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
