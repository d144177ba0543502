package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"kb-rag-go/pkg/log"
)

type pendingFile struct {
	root Root
	at   time.Time
}

// Watch 监听根目录，文件新建或写入后经过 debounce 静默期再重新入库，直到 ctx 取消。
// 删除事件被忽略：孤儿分块的清理不在 indexer 的职责内。
func (ix *Indexer) Watch(ctx context.Context, roots []Root, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range roots {
		if err := addTree(w, root.Path); err != nil {
			return err
		}
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	tick := debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Infof("[Watcher] 开始监听, roots: %d, debounce: %s", len(roots), debounce)
	pending := make(map[string]pendingFile)
	for {
		select {
		case <-ctx.Done():
			log.Info("[Watcher] 停止监听")
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(w, roots, ev, pending)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[Watcher] fsnotify 错误: %v", err)
		case now := <-ticker.C:
			for path, p := range pending {
				if now.Sub(p.at) < debounce {
					continue
				}
				delete(pending, path)
				o := ix.IndexFile(ctx, p.root, path)
				log.Infof("[Watcher] 文件已处理, path: %s, status: %s, ingested: %d", path, o.Status, o.Ingested)
			}
		}
	}
}

func (ix *Indexer) handleEvent(w *fsnotify.Watcher, roots []Root, ev fsnotify.Event, pending map[string]pendingFile) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if isHidden(filepath.Base(ev.Name)) {
		return
	}
	root, ok := rootFor(roots, ev.Name)
	if !ok {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// 新目录：加入监听，并把其中已存在的文件排入队列
		if err := addTree(w, ev.Name); err != nil {
			log.Warnf("[Watcher] 监听新目录失败, path: %s, error: %v", ev.Name, err)
		}
		found, err := walkRoot(Root{Path: ev.Name, Label: root.Label})
		if err != nil {
			return
		}
		for _, f := range found {
			pending[f.path] = pendingFile{root: root, at: time.Now()}
		}
		return
	}
	pending[ev.Name] = pendingFile{root: root, at: time.Now()}
}

// addTree 递归监听目录，跳过隐藏目录。
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// rootFor 返回包含 path 的最长根目录。
func rootFor(roots []Root, path string) (Root, bool) {
	var best Root
	found := false
	for _, r := range roots {
		rel, err := filepath.Rel(r.Path, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if !found || len(r.Path) > len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}
