// Package fingerprint 计算文档的内容哈希与最后修改时间，用于变更检测。
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

// blockSize 是流式计算哈希时每次读取的字节数。
const blockSize = 8192

// Fingerprint 是 (内容哈希, 修改时间) 二元组。
type Fingerprint struct {
	Hash         string
	LastModified string
}

// Of 同时计算 path 的哈希与修改时间。
func Of(path string) (Fingerprint, error) {
	h, err := Hash(path)
	if err != nil {
		return Fingerprint{}, err
	}
	mt, err := ModTimeUTC(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Hash: h, LastModified: mt}, nil
}

// Hash 以固定大小的块流式读取文件，返回 SHA-256 的小写十六进制摘要。
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, blockSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("读取文件失败: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ModTimeUTC 返回文件修改时间的 UTC ISO-8601 表示，以 "Z" 结尾。
func ModTimeUTC(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("读取文件信息失败: %w", err)
	}
	return FormatTime(info.ModTime()), nil
}

// FormatTime 把时间转换为 UTC 并保留其自带的小数秒精度。
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
