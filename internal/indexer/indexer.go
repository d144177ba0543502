// Package indexer 扫描知识库目录，把文件转换成入库请求并交给 Sink。
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"kb-rag-go/internal/chunker"
	"kb-rag-go/internal/fingerprint"
	"kb-rag-go/internal/identity"
	"kb-rag-go/internal/lock"
	"kb-rag-go/internal/model"
	"kb-rag-go/pkg/log"
)

// ErrRootMissing 表示配置的根目录不存在或不是目录。
var ErrRootMissing = errors.New("root path does not exist")

// Sink 接收一个文档的入库请求。service.IngestService、ragapi.Client 与 kafka.Producer 都满足它。
type Sink interface {
	Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error)
}

// Archiver 在文档成功入库后保存源文件。
type Archiver interface {
	Archive(ctx context.Context, documentID, path string) error
}

// Root 是一个被扫描的顶层目录。
type Root struct {
	Path  string
	Label string
}

// NewRoot 校验目录存在并计算 root label。
func NewRoot(path string) (Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %s", ErrRootMissing, path)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return Root{}, fmt.Errorf("%w: %s", ErrRootMissing, path)
	}
	return Root{Path: abs, Label: identity.RootLabel(abs)}, nil
}

// NewRoots 依次校验全部根目录，任意一个缺失即返回错误。
func NewRoots(paths []string) ([]Root, error) {
	roots := make([]Root, 0, len(paths))
	for _, p := range paths {
		r, err := NewRoot(p)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, nil
}

// Outcome 是单个文件的处理结果。
type Outcome struct {
	Path       string `json:"path"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
	Ingested   int    `json:"ingested"`
	Version    *int   `json:"version,omitempty"`
	Err        error  `json:"-"`
}

// Options 控制 Indexer 的行为。
type Options struct {
	MaxChars    int
	Concurrency int
	Archiver    Archiver // 可为 nil
}

// Indexer 对单个文件执行 归类 -> 提取 -> 分块 -> 身份 -> 指纹 -> 提交。
type Indexer struct {
	extractor   Extractor
	sink        Sink
	archiver    Archiver
	maxChars    int
	concurrency int
	inflight    *lock.KeyedMutex
}

// New 创建 Indexer。MaxChars 非法时返回 chunker.ErrInvalidMaxChars。
func New(extractor Extractor, sink Sink, opts Options) (*Indexer, error) {
	if opts.MaxChars < 1 {
		return nil, chunker.ErrInvalidMaxChars
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Indexer{
		extractor:   extractor,
		sink:        sink,
		archiver:    opts.Archiver,
		maxChars:    opts.MaxChars,
		concurrency: opts.Concurrency,
		inflight:    lock.NewKeyedMutex(),
	}, nil
}

// IndexFile 处理 root 下的一个文件。跳过与失败都体现在 Outcome 中，不返回 error。
func (ix *Indexer) IndexFile(ctx context.Context, root Root, path string) Outcome {
	out := Outcome{Path: path}

	info, err := os.Lstat(path)
	if err != nil {
		return ix.fail(out, fmt.Errorf("读取文件信息失败: %w", err))
	}
	kind, skip := Classify(path, info)
	if skip != "" {
		out.Status = skip
		return out
	}

	text := ix.extractor.Extract(ctx, path, kind)
	if strings.TrimSpace(text) == "" {
		out.Status = StatusSkippedEmpty
		return out
	}
	pieces, err := chunker.Split(text, ix.maxChars)
	if err != nil {
		return ix.fail(out, err)
	}
	if len(pieces) == 0 {
		out.Status = model.StatusNoChunks
		return out
	}

	out.DocumentID = identity.DocumentID(root.Label, path, root.Path)
	fp, err := fingerprint.Of(path)
	if err != nil {
		return ix.fail(out, fmt.Errorf("计算文件指纹失败: %w", err))
	}
	req := buildRequest(root, path, out.DocumentID, fp, pieces)

	// 同一 document_id 在本进程内只允许一个在途请求
	unlock, err := ix.inflight.Lock(ctx, out.DocumentID)
	if err != nil {
		return ix.fail(out, err)
	}
	defer unlock()

	resp, err := ix.sink.Ingest(ctx, req)
	if err != nil {
		return ix.fail(out, err)
	}
	out.Status = resp.Status
	out.Ingested = resp.Ingested
	out.Version = resp.Version

	if ix.archiver != nil && resp.Status == model.StatusOK {
		if err := ix.archiver.Archive(ctx, out.DocumentID, path); err != nil {
			log.Warnf("[Indexer] 归档源文件失败, document_id: %s, error: %v", out.DocumentID, err)
		}
	}
	return out
}

func (ix *Indexer) fail(out Outcome, err error) Outcome {
	log.Errorf("[Indexer] 处理文件失败, path: %s, error: %v", out.Path, err)
	out.Status = StatusError
	out.Err = err
	return out
}

func buildRequest(root Root, path, documentID string, fp fingerprint.Fingerprint, pieces []string) *model.IngestRequest {
	rel, err := filepath.Rel(root.Path, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	fileType := FileType(path)

	chunks := make([]model.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, model.Chunk{
			ID:   identity.ChunkID(documentID, i),
			Text: text,
			Metadata: map[string]interface{}{
				model.MetaPath:         rel,
				model.MetaSource:       root.Label,
				model.MetaFileType:     fileType,
				model.MetaChunkIndex:   i,
				model.MetaChunkCount:   len(pieces),
				model.MetaDocumentID:   documentID,
				model.MetaDocHash:      fp.Hash,
				model.MetaLastModified: fp.LastModified,
			},
		})
	}
	return &model.IngestRequest{
		DocumentID:   documentID,
		DocHash:      model.StringPtr(fp.Hash),
		LastModified: model.StringPtr(fp.LastModified),
		Chunks:       chunks,
	}
}

type fileRef struct {
	root Root
	path string
}

// Sweep 扫描所有根目录并逐个文件入库。单个文件失败不会中断扫描；
// ctx 取消后不再开始新的文件，已开始的文件会完整处理。返回的结果按扫描顺序排列。
func (ix *Indexer) Sweep(ctx context.Context, roots []Root) ([]Outcome, error) {
	var files []fileRef
	for _, root := range roots {
		found, err := walkRoot(root)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	log.Infof("[Indexer] 开始扫描, roots: %d, files: %d, concurrency: %d", len(roots), len(files), ix.concurrency)

	outcomes := make([]Outcome, len(files))
	done := make([]bool, len(files))
	docCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(ix.concurrency)
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = ix.IndexFile(docCtx, f.root, f.path)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	result := make([]Outcome, 0, len(files))
	for i, o := range outcomes {
		if done[i] {
			result = append(result, o)
		}
	}
	logSummary(result)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// walkRoot 列出根目录下的文件，隐藏目录整体跳过。
func walkRoot(root Root) ([]fileRef, error) {
	if _, err := os.Stat(root.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root.Path)
	}
	var files []fileRef
	err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("[Indexer] 遍历目录出错, path: %s, error: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root.Path && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, fileRef{root: root, path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func logSummary(outcomes []Outcome) {
	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	fields := make([]interface{}, 0, 2*len(statuses)+2)
	fields = append(fields, "files", len(outcomes))
	for _, s := range statuses {
		fields = append(fields, s, counts[s])
	}
	log.Infow("[Indexer] 扫描完成", fields...)
}
