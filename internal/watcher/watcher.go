// Package watcher recursively watches adapter watch-roots for changes
// and dispatches settled paths to the ingestion engine, grounded on
// dive's FileWatcher (recursive filepath.Walk to seed fsnotify, since
// fsnotify itself isn't recursive, plus a map of per-path debounce
// timers).
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nstogner/lore/internal/adapter/registry"
)

// Config holds the watcher's tunables (spec.md §6 daemon.debounce_ms).
type Config struct {
	// Debounce is how long a path must go quiet before it is
	// dispatched. Default 300ms.
	Debounce time.Duration
}

func DefaultConfig() Config {
	return Config{Debounce: 300 * time.Millisecond}
}

// resolver maps an adapter-specific event path to the path the engine
// should actually ingest. OpenCode's message-file events need this;
// every other adapter's identity resolver (the default) is a no-op.
type resolver interface {
	ResolveMessageEvent(path string) (string, bool)
}

// Watcher recursively watches every enabled adapter's watch roots.
type Watcher struct {
	reg *registry.Registry
	cfg Config
	log *slog.Logger

	fsw *fsnotify.Watcher

	mu         sync.Mutex
	pending    map[string]*time.Timer
	watchedDir map[string]bool

	// Ingest is invoked, debounced, for every settled path that an
	// adapter's registry entry (after resolver mapping) claims.
	Ingest func(ctx context.Context, path string) error
}

// New builds a Watcher over reg. Call Start to begin watching.
func New(reg *registry.Registry, cfg Config, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		reg:        reg,
		cfg:        cfg,
		log:        log,
		fsw:        fsw,
		pending:    make(map[string]*time.Timer),
		watchedDir: make(map[string]bool),
	}, nil
}

// Start seeds watches for every adapter root and begins the event
// loop. It blocks until ctx is cancelled or the underlying watcher's
// channels close.
func (w *Watcher) Start(ctx context.Context) error {
	roots, err := w.reg.WatchRoots()
	if err != nil {
		return err
	}
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			w.log.Warn("watcher: failed to add root", "root", root, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return w.fsw.Close()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

// addRecursive walks root adding every directory it contains to the
// underlying watcher; fsnotify only watches the directories it is
// explicitly told about, not their descendants.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // a missing/unreadable subtree is skipped, not fatal
		}
		if !info.IsDir() {
			return nil
		}
		w.mu.Lock()
		already := w.watchedDir[path]
		w.mu.Unlock()
		if already {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("watcher: failed to watch directory", "dir", path, "error", err)
			return nil
		}
		w.mu.Lock()
		w.watchedDir[path] = true
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}

	// A newly created directory (e.g. opencode's storage/message/<id>/)
	// needs its own watch added immediately, or its first file events
	// are lost.
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if err := w.addRecursive(ev.Name); err != nil {
			w.log.Warn("watcher: failed to watch new directory", "dir", ev.Name, "error", err)
		}
		return
	}

	target := w.resolveTarget(ev.Name)
	if target == "" {
		return
	}

	w.debounce(ctx, target)
}

// resolveTarget maps ev.Name to the path the engine should ingest,
// applying any adapter's ResolveMessageEvent escape hatch (only
// OpenCode currently implements one) before falling back to the raw
// event path.
func (w *Watcher) resolveTarget(path string) string {
	for _, a := range w.reg.Adapters() {
		if r, ok := a.(resolver); ok {
			if target, ok := r.ResolveMessageEvent(path); ok {
				return target
			}
		}
	}
	if w.reg.Match(path) != nil {
		return path
	}
	return ""
}

func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, exists := w.pending[path]; exists {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if w.Ingest == nil {
			return
		}
		if err := w.Ingest(ctx, path); err != nil {
			w.log.Warn("watcher: ingest failed", "path", path, "error", err)
		}
	})
}

// Close stops the underlying fsnotify watcher directly, for callers
// that aren't driving Start via context cancellation (e.g. tests).
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
