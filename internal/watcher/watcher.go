// Package watcher reports file changes under source folders so cached
// inventories can be dropped.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FSWatcher watches directory trees with fsnotify. Directories created
// later are added as they appear; hidden directories are ignored.
type FSWatcher struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu       sync.Mutex
	callback func(path string, event EventType)
	roots    map[string]bool

	done     chan struct{}
	stopOnce sync.Once
}

func NewFSWatcher(logger *slog.Logger) (*FSWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &FSWatcher{
		fsw:    fsw,
		logger: logger,
		roots:  make(map[string]bool),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch adds path and its subdirectories. Watching a root twice is a no-op.
func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.roots[abs] {
		w.mu.Unlock()
		return nil
	}
	w.roots[abs] = true
	w.mu.Unlock()

	if err := w.addTree(ctx, abs); err != nil {
		w.mu.Lock()
		delete(w.roots, abs)
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching folder", "path", abs)
	return nil
}

// Watching reports whether path was passed to Watch.
func (w *FSWatcher) Watching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roots[abs]
}

func (w *FSWatcher) addTree(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			w.logger.Debug("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			if p == root {
				return err
			}
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

func (w *FSWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
		<-w.done
	})
	return err
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

func (w *FSWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	var kind EventType
	switch {
	case ev.Has(fsnotify.Create):
		kind = EventCreate
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() && !strings.HasPrefix(filepath.Base(ev.Name), ".") {
			if err := w.addTree(context.Background(), ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
			}
		}
	case ev.Has(fsnotify.Write):
		kind = EventModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = EventDelete
	default:
		return
	}

	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()

	w.logger.Debug("file change", "path", ev.Name, "event", kind.String())
	if cb != nil {
		cb(ev.Name, kind)
	}
}
