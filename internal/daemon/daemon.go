// Package daemon owns the lifecycle of the background process: given an
// already-opened store, it launches the watcher, a periodic full scan, a
// finalisation sweep, and the IPC listener, and tears them down in
// order on shutdown. Grounded on who-wrote-it's internal/daemon/daemon.go
// (struct-holds-subsystems shape, ordered shutdown, signal-aware
// context) and the teacher's main.go goroutine-per-subsystem wiring.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nstogner/lore/internal/adapter/registry"
	"github.com/nstogner/lore/internal/engine"
	"github.com/nstogner/lore/internal/ipc"
	"github.com/nstogner/lore/internal/linker"
	"github.com/nstogner/lore/internal/store"
	"github.com/nstogner/lore/internal/watcher"
)

// Config holds the daemon-level tunables of spec.md §6.
type Config struct {
	PIDPath         string
	SocketPath      string
	ScanInterval    time.Duration // default 60s
	SweepInterval   time.Duration // default same as ScanInterval
}

func DefaultConfig(lorHome string) Config {
	return Config{
		PIDPath:       lorHome + "/daemon.pid",
		SocketPath:    lorHome + "/daemon.sock",
		ScanInterval:  60 * time.Second,
		SweepInterval: 60 * time.Second,
	}
}

// RepoResolver maps a session's working directory to the git repository
// path the linker should enumerate commits in; normally identity, but
// kept pluggable for worktrees and nested repos.
type RepoResolver func(workingDirectory string) (string, bool)

// Daemon is the top-level background process.
type Daemon struct {
	cfg      Config
	store    store.Store
	registry *registry.Registry
	engine   *engine.Engine
	linker   *linker.Linker
	watcher  *watcher.Watcher
	ipc      *ipc.Server
	resolve  RepoResolver
	log      *slog.Logger

	lock *fileLock

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New wires the daemon's subsystems together. The caller constructs
// store/registry/engine/linker/watcher/ipc and passes them in; Daemon
// only sequences their lifecycles.
func New(cfg Config, st store.Store, reg *registry.Registry, eng *engine.Engine, lk *linker.Linker, w *watcher.Watcher, ipcServer *ipc.Server, resolve RepoResolver, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	d := &Daemon{
		cfg: cfg, store: st, registry: reg, engine: eng, linker: lk,
		watcher: w, ipc: ipcServer, resolve: resolve, log: log,
		lock: newFileLock(cfg.PIDPath),
	}
	eng.OnSessionEnded = d.onSessionEnded
	ipcServer.Shutdown = func(ctx context.Context) error {
		go d.Stop()
		return nil
	}
	ipcServer.IngestNow = d.ingestAll
	return d
}

// Start acquires the PID lock, opens every subsystem, and blocks until
// the process receives SIGINT/SIGTERM or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon: already running")
	}
	d.mu.Unlock()

	if err := d.lock.Acquire(); err != nil {
		return fmt.Errorf("acquire pid lock: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	d.mu.Lock()
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	ipcErrCh := make(chan error, 1)
	go func() { ipcErrCh <- d.ipc.Start(ctx) }()

	d.watcher.Ingest = d.engine.Ingest
	go func() {
		if err := d.watcher.Start(ctx); err != nil {
			d.log.Warn("daemon: watcher stopped", "error", err)
		}
	}()

	go d.runScanLoop(ctx)
	go d.runSweepLoop(ctx)

	d.log.Info("daemon started", "pid", os.Getpid(), "socket", d.cfg.SocketPath)

	select {
	case <-ctx.Done():
		d.log.Info("daemon: shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			d.log.Warn("daemon: ipc server error", "error", err)
		}
	}

	return d.shutdown()
}

// Stop triggers a graceful shutdown from outside, e.g. the IPC
// "shutdown" command.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown tears subsystems down in the order spec.md §4.5 names:
// stop IPC, cancel the watcher, flush in-flight merges (the engine has
// no background writers to flush beyond what ctx cancellation already
// stops), then remove the PID file and socket.
func (d *Daemon) shutdown() error {
	d.log.Info("daemon: shutting down")

	if err := d.ipc.Close(); err != nil {
		d.log.Warn("daemon: ipc close error", "error", err)
	}
	if err := d.watcher.Close(); err != nil {
		d.log.Warn("daemon: watcher close error", "error", err)
	}
	if err := d.store.Close(); err != nil {
		d.log.Warn("daemon: store close error", "error", err)
	}
	if err := d.lock.Release(); err != nil {
		d.log.Warn("daemon: pid lock release error", "error", err)
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.Info("daemon stopped")
	return nil
}

// runScanLoop periodically walks every adapter's current sources and
// re-ingests any that the watcher might have missed (startup backfill,
// missed fsnotify events under load).
func (d *Daemon) runScanLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.ingestAll(ctx); err != nil {
				d.log.Warn("daemon: periodic scan error", "error", err)
			}
		}
	}
}

func (d *Daemon) ingestAll(ctx context.Context) error {
	sources, err := d.registry.FindAll()
	if err != nil {
		return fmt.Errorf("find sources: %w", err)
	}
	for _, src := range sources {
		if err := d.engine.Ingest(ctx, src.Path); err != nil {
			d.log.Warn("daemon: scan ingest failed", "source_path", src.Path, "error", err)
		}
	}
	return nil
}

// runSweepLoop re-runs Ingest over every source the adapters currently
// find, so a session finalises even if its source file never changes
// again: the engine re-parses an unchanged source once it has been idle
// for the inactivity threshold and re-evaluates finalisation then.
func (d *Daemon) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.ingestAll(ctx); err != nil {
				d.log.Warn("daemon: finalisation sweep error", "error", err)
			}
		}
	}
}

// onSessionEnded runs forward linking for a freshly finalised session,
// wired as engine.Engine.OnSessionEnded.
func (d *Daemon) onSessionEnded(ctx context.Context, sessionID string) {
	sess, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		d.log.Warn("daemon: get finalised session failed", "session_id", sessionID, "error", err)
		return
	}
	if sess.EndedAt == nil || sess.WorkingDirectory == "" {
		return
	}
	repoPath := sess.WorkingDirectory
	if d.resolve != nil {
		if rp, ok := d.resolve(sess.WorkingDirectory); ok {
			repoPath = rp
		}
	}
	if err := d.linker.LinkForward(ctx, *sess, repoPath); err != nil {
		d.log.Warn("daemon: forward link failed", "session_id", sessionID, "repo_path", repoPath, "error", err)
	}
}
