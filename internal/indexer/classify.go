package indexer

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Kind 是按扩展名归类后的文件类型。
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPDF
	KindDOCX
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	}
	return "unsupported"
}

// 单文件处理结果中的跳过原因与失败状态，补充 model 中的 ok/skipped_unchanged/no_chunks/queued。
const (
	StatusSkippedUnsupported = "skipped_unsupported"
	StatusSkippedHidden      = "skipped_hidden"
	StatusSkippedNotRegular  = "skipped_not_regular"
	StatusSkippedEmpty       = "skipped_empty"
	StatusError              = "error"
)

var extensionKinds = map[string]Kind{
	".txt":      KindText,
	".md":       KindText,
	".markdown": KindText,
	".log":      KindText,
	".pdf":      KindPDF,
	".docx":     KindDOCX,
}

// Classify 判断文件是否需要入库。返回的 skip 非空时表示跳过原因。
func Classify(path string, info fs.FileInfo) (kind Kind, skip string) {
	if isHidden(filepath.Base(path)) {
		return KindUnsupported, StatusSkippedHidden
	}
	if info == nil || !info.Mode().IsRegular() {
		return KindUnsupported, StatusSkippedNotRegular
	}
	kind, ok := extensionKinds[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return KindUnsupported, StatusSkippedUnsupported
	}
	return kind, ""
}

// FileType 返回小写、不带点的扩展名。
func FileType(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
