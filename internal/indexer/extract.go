package indexer

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"kb-rag-go/pkg/log"
)

// Extractor 把一个已归类的文件转换成纯文本。解析失败时返回空字符串，不返回错误。
type Extractor interface {
	Extract(ctx context.Context, path string, kind Kind) string
}

// RemoteExtractor 是 PDF/DOCX 的远程解析服务（Tika）。
type RemoteExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

type fileExtractor struct {
	remote RemoteExtractor
}

// NewExtractor 创建默认的 Extractor。remote 为 nil 时 PDF 无法解析，DOCX 只走本地解析。
func NewExtractor(remote RemoteExtractor) Extractor {
	return &fileExtractor{remote: remote}
}

func (e *fileExtractor) Extract(ctx context.Context, path string, kind Kind) string {
	switch kind {
	case KindText:
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("[Extractor] 读取文本文件失败, path: %s, error: %v", path, err)
			return ""
		}
		return strings.ToValidUTF8(string(data), "")
	case KindPDF:
		if e.remote == nil {
			log.Warnf("[Extractor] 未配置 Tika, 无法解析 PDF, path: %s", path)
			return ""
		}
		text, err := e.remote.ExtractFile(ctx, path)
		if err != nil {
			log.Warnf("[Extractor] 解析 PDF 失败, path: %s, error: %v", path, err)
			return ""
		}
		return text
	case KindDOCX:
		if e.remote != nil {
			text, err := e.remote.ExtractFile(ctx, path)
			if err == nil {
				return text
			}
			log.Warnf("[Extractor] Tika 解析 DOCX 失败, 改用本地解析, path: %s, error: %v", path, err)
		}
		text, err := docxText(path)
		if err != nil {
			log.Warnf("[Extractor] 解析 DOCX 失败, path: %s, error: %v", path, err)
			return ""
		}
		return text
	}
	return ""
}

type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

// docxText 读取 word/document.xml 中的段落文本，段落之间用换行分隔。
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", err
		}
		var sb strings.Builder
		for i, p := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t)
				}
			}
		}
		return strings.TrimSpace(sb.String()), nil
	}
	return "", nil
}
