package supervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"combo/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RootsWatcher 监控 roots 文件的变化
//
// 监控的是文件所在目录而不是文件本身，编辑器保存时常见的“写临时文件再改名”也能被捕获。
type RootsWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.SugaredLogger
}

func NewRootsWatcher(path string) (*RootsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &RootsWatcher{
		path:    abs,
		watcher: w,
		logger:  logger.Logging("watcher"),
	}, nil
}

// Run 阻塞直到 ctx 结束；每次 roots 文件被写入、创建或改名覆盖时向 changed 投递一次通知
//
// changed 应当带缓冲，通知在接收方来不及处理时合并。
func (w *RootsWatcher) Run(ctx context.Context, changed chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			w.logger.Debugf("%s: %s", ev.Op, ev.Name)
			select {
			case changed <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Watch error: %v", err)
		}
	}
}

func (w *RootsWatcher) Close() error {
	return w.watcher.Close()
}
