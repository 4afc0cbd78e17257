// Package watch reruns work when build manifests in a repository change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/bacardi/internal/depdiff"
)

// DefaultDebounce is how long a manifest must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

const tick = 100 * time.Millisecond

// Handler receives the manifests that changed, sorted, relative to the root.
type Handler func(ctx context.Context, paths []string)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":         true,
	".gradle":      true,
	".idea":        true,
	"build":        true,
	"node_modules": true,
	"target":       true,
}

// Watcher observes a repository tree for manifest changes.
type Watcher struct {
	root     string
	debounce time.Duration
	handler  Handler

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a Watcher over root. A non-positive debounce uses DefaultDebounce.
func New(root string, debounce time.Duration, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		handler:  handler,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is done. The handler runs on the watcher goroutine,
// so changes arriving while it runs are batched into the next call.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.root); err != nil {
		return err
	}

	log := clog.FromContext(ctx).With("root", w.root)
	log.Infof("watching for manifest changes")

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watcher error: %v", err)
		case <-ticker.C:
			if paths := w.settled(time.Now()); len(paths) > 0 {
				log.With("count", len(paths)).Infof("manifests changed")
				w.handler(ctx, paths)
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, event.Name); err != nil {
				clog.FromContext(ctx).Warnf("failed to watch %s: %v", event.Name, err)
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !depdiff.IsManifest(event.Name) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = time.Now()
	w.mu.Unlock()
}

// settled removes and returns the pending paths quiet for at least the debounce window.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for p, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			paths = append(paths, p)
			delete(w.pending, p)
		}
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if path != dir {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
