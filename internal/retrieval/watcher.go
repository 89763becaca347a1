package retrieval

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a corpus retriever when documents in its directory
// change, so knowledge-base edits take effect without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	retriever *CorpusRetriever
	dir       string
}

// NewWatcher creates a watcher over the retriever's corpus directory.
func NewWatcher(retriever *CorpusRetriever, dir string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: w, retriever: retriever, dir: dir}, nil
}

// Start begins monitoring until the context is cancelled. Reload failures
// are logged and the previous corpus stays in service.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Info("Watcher.Start: watching corpus directory", "dir", w.dir)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !isCorpusFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				slog.Debug("Watcher: corpus change detected", "path", event.Name, "op", event.Op.String())
				if err := w.retriever.Reload(); err != nil {
					slog.Error("Watcher: corpus reload failed", "error", err, "path", event.Name)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher: filesystem watch error", "error", err)
			}
		}
	}()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func isCorpusFile(path string) bool {
	return corpusExtensions[strings.ToLower(filepath.Ext(path))]
}
