// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"kb-rag-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		serverURL:  cfg.ServerURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取文本。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	contentType := detectMimeType(fileName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.String(), nil
}

// ExtractFile 打开本地文件并提取文本。
func (c *Client) ExtractFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return c.ExtractText(ctx, f, filepath.Base(path))
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		switch ext {
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".pdf":
			return "application/pdf"
		}
		return "application/octet-stream"
	}
	return mimeType
}
