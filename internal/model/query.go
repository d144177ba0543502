package model

import (
	"encoding/json"
	"math"
	"strconv"
)

// QueryRequest 是 /query 的请求体。TopK 为 nil 时使用默认值。
type QueryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

// QueryResult 是单条检索结果，version 与 last_modified 取自 metadata。
type QueryResult struct {
	ID           string                 `json:"id"`
	Text         string                 `json:"text"`
	Metadata     map[string]interface{} `json:"metadata"`
	Version      *int                   `json:"version"`
	LastModified *string                `json:"last_modified"`
}

// QueryResponse 是 /query 的响应体。
type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// MetadataInt 从 metadata 中读取整数。JSON 解码后的数字是 float64，ES 返回的可能是 json.Number，都需要兼容。
func MetadataInt(meta map[string]interface{}, key string) (int, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		return MetadataInt(map[string]interface{}{key: float64(n)}, key)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// MetadataString 从 metadata 中读取字符串，非字符串视为不存在。
func MetadataString(meta map[string]interface{}, key string) (string, bool) {
	v, ok := meta[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// CopyMetadata 浅拷贝 metadata，nil 返回空 map。
func CopyMetadata(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+4)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
