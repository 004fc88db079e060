package data

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher evicts cache entries when their files change on disk outside the
// store, so hand-edited documents are picked up on the next read.
type Watcher struct {
	store   *Store
	base    string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

// NewWatcher watches the document tree of a file-backed store.
func NewWatcher(s *Store) (*Watcher, error) {
	fb, ok := s.Backend().(*FileBackend)
	if !ok {
		return nil, fmt.Errorf("watch requires a file backend, got %T", s.Backend())
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		store:   s,
		base:    fb.Base(),
		watcher: fw,
		log:     slog.With("component", "data.watch"),
	}

	root := filepath.Join(w.base, filepath.FromSlash(s.Codec().root()))
	if err := os.MkdirAll(root, 0o755); err != nil {
		fw.Close()
		return nil, fmt.Errorf("create document root: %w", err)
	}
	if err := w.addDirs(root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add directories to watcher: %w", err)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				w.log.Warn("watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, docExt) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel, err := filepath.Rel(w.base, event.Name)
	if err != nil {
		return
	}
	path := filepath.ToSlash(rel)
	if w.store.Invalidate(path) {
		w.log.Debug("evicted changed document", "path", path, "op", event.Op.String())
	}
}
