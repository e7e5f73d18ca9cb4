package devbackend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the fixture tree must stay quiet before a
// change triggers a rescan.
const DefaultDebounce = 400 * time.Millisecond

// Watcher triggers onChange after YAML edits or directory changes under the
// watched dirs settle. fsnotify is not recursive, so the tree is walked up
// front and new folders are added as they appear.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(ctx context.Context)
	log      *zap.Logger

	dirty     bool
	lastEvent time.Time
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewWatcher(debounce time.Duration, onChange func(ctx context.Context), log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// AddTree watches dir and every directory below it, skipping hidden ones.
func (w *Watcher) AddTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn("watch failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		w.log.Warn("walk failed", zap.String("dir", dir), zap.Error(err))
	}
}

func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	go w.run(ctx)
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()
	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.log.Warn("close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		case <-tick.C:
			w.mu.Lock()
			fire := w.dirty && time.Since(w.lastEvent) >= w.debounce
			if fire {
				w.dirty = false
			}
			w.mu.Unlock()
			if fire && w.onChange != nil {
				w.onChange(ctx)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if strings.HasSuffix(ev.Name, ".tmp") {
		return
	}
	relevant := IsConfigFile(ev.Name) || isYAML(ev.Name)
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.AddTree(ev.Name)
			relevant = true
		}
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(ev.Name) == "" {
		relevant = true
	}
	if !relevant {
		return
	}
	w.log.Debug("fixture changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
	w.mu.Lock()
	w.dirty = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
