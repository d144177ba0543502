// Package identity 生成稳定的文档 ID 与分块 ID。
package identity

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DocumentID 返回 "{rootLabel}/{relativePath}"，分隔符统一为 "/"。
// 调用方保证 fullPath 位于 rootPath 之下，这里不做重复校验。
func DocumentID(rootLabel, fullPath, rootPath string) string {
	rel := toSlash(fullPath)
	root := strings.TrimRight(toSlash(rootPath), "/")

	if r, err := filepath.Rel(filepath.FromSlash(root), filepath.FromSlash(rel)); err == nil {
		rel = toSlash(r)
	} else {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, root), "/")
	}
	return rootLabel + "/" + rel
}

// ChunkID 返回 "{documentID}#chunk-{ordinal}"。
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#chunk-%d", documentID, ordinal)
}

// RootLabel 取根目录路径的最后一段，例如 "/kb/sops/" -> "sops"。
func RootLabel(rootPath string) string {
	p := strings.TrimRight(toSlash(rootPath), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// toSlash 同时处理 "/" 与 "\"，结果与运行平台无关。
func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
