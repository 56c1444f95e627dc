// Command lored runs the lore background process: it discovers,
// watches, and ingests coding-assistant session logs, and links
// finalised sessions to the git commits they produced. Wiring follows
// the teacher's cmd/operative/main.go shape (logger, then store, then
// each subsystem, then a blocking Start).
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/adapter/aiderjsonl"
	"github.com/nstogner/lore/internal/adapter/aidermd"
	"github.com/nstogner/lore/internal/adapter/amp"
	"github.com/nstogner/lore/internal/adapter/claudecode"
	"github.com/nstogner/lore/internal/adapter/cline"
	"github.com/nstogner/lore/internal/adapter/codex"
	"github.com/nstogner/lore/internal/adapter/continuedev"
	"github.com/nstogner/lore/internal/adapter/geminicli"
	"github.com/nstogner/lore/internal/adapter/opencode"
	"github.com/nstogner/lore/internal/adapter/registry"
	"github.com/nstogner/lore/internal/adapter/roocode"
	"github.com/nstogner/lore/internal/config"
	"github.com/nstogner/lore/internal/daemon"
	"github.com/nstogner/lore/internal/engine"
	"github.com/nstogner/lore/internal/ipc"
	"github.com/nstogner/lore/internal/linker"
	"github.com/nstogner/lore/internal/store/sqlite"
	"github.com/nstogner/lore/internal/watcher"
)

var allAdapters = map[string]adapter.Adapter{
	"claude-code":  &claudecode.Adapter{},
	"codex":        &codex.Adapter{},
	"aider-jsonl":  &aiderjsonl.Adapter{},
	"aider-md":     &aidermd.Adapter{},
	"continue-dev": &continuedev.Adapter{},
	"gemini-cli":   &geminicli.Adapter{},
	"amp":          &amp.Adapter{},
	"cline":        &cline.Adapter{},
	"roo-code":     &roocode.Adapter{},
	"opencode":     &opencode.Adapter{},
}

func main() {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	home, err := config.Home()
	if err != nil {
		logger.Error("resolve lore home", "error", err)
		os.Exit(1)
	}
	if err := config.EnsureHome(home); err != nil {
		logger.Error("create lore home", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(home)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	st, err := sqlite.New(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var enabled []adapter.Adapter
	for _, name := range cfg.Watchers {
		a, ok := allAdapters[name]
		if !ok {
			logger.Warn("unknown watcher in config, skipping", "name", name)
			continue
		}
		if !a.IsAvailable() {
			logger.Debug("adapter source not present on this machine, skipping", "name", name)
			continue
		}
		enabled = append(enabled, a)
	}
	reg, err := registry.New(enabled)
	if err != nil {
		logger.Error("build adapter registry", "error", err)
		os.Exit(1)
	}

	engCfg := engine.DefaultConfig()
	engCfg.InactivityTimeout = toMinutes(cfg.Finalisation.InactivityMinutes)
	eng := engine.New(st, reg, engCfg, logger)

	linkCfg := linker.DefaultConfig()
	linkCfg.Threshold = cfg.AutoLink.Threshold
	linkCfg.Window = toMinutes(cfg.AutoLink.WindowMinutes)
	lk := linker.New(st, linkCfg)

	w, err := watcher.New(reg, watcher.Config{Debounce: toMillis(cfg.Daemon.DebounceMS)}, logger)
	if err != nil {
		logger.Error("build watcher", "error", err)
		os.Exit(1)
	}

	ipcServer := ipc.New(home+"/daemon.sock", st, logger)

	daemonCfg := daemon.DefaultConfig(home)
	daemonCfg.ScanInterval = toSeconds(cfg.Daemon.ScanIntervalSeconds)
	daemonCfg.SweepInterval = daemonCfg.ScanInterval

	d := daemon.New(daemonCfg, st, reg, eng, lk, w, ipcServer, nil, logger)

	if err := d.Start(context.Background()); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func toMinutes(n int) time.Duration { return time.Duration(n) * time.Minute }
func toSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
func toMillis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
