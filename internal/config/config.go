// Package config loads lore's YAML configuration file, following the
// teacher pack's yaml.v3 usage and the teacher's own default-application
// idiom (apply defaults in code, not via struct tags).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AutoLink holds the linker's scoring tunables (spec.md §6).
type AutoLink struct {
	Threshold     float64 `yaml:"threshold"`
	WindowMinutes int     `yaml:"window_minutes"`
}

// Finalisation holds the engine's inactivity tunable.
type Finalisation struct {
	InactivityMinutes int `yaml:"inactivity_minutes"`
}

// Daemon holds the background process's scan/debounce tunables.
type Daemon struct {
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`
	DebounceMS          int `yaml:"debounce_ms"`
}

// Storage holds the store's on-disk location.
type Storage struct {
	DatabasePath string `yaml:"database_path"`
}

// Config is the full document recognised at $LORE_HOME/config.yaml.
type Config struct {
	Watchers     []string     `yaml:"watchers"`
	AutoLink     AutoLink     `yaml:"auto_link"`
	Finalisation Finalisation `yaml:"finalisation"`
	Daemon       Daemon       `yaml:"daemon"`
	Storage      Storage      `yaml:"storage"`
	MachineName  string       `yaml:"machine_name"`
}

// defaultWatchers enables every adapter this module ships when the
// config file doesn't name an explicit subset.
var defaultWatchers = []string{
	"claude-code", "codex", "aider-jsonl", "aider-md",
	"continue-dev", "gemini-cli", "amp", "cline", "roo-code", "opencode",
}

// Default returns the documented defaults (spec.md §6), with
// Storage.DatabasePath rooted at home.
func Default(home string) Config {
	return Config{
		Watchers: append([]string(nil), defaultWatchers...),
		AutoLink: AutoLink{
			Threshold:     0.5,
			WindowMinutes: 30,
		},
		Finalisation: Finalisation{InactivityMinutes: 30},
		Daemon: Daemon{
			ScanIntervalSeconds: 60,
			DebounceMS:          300,
		},
		Storage: Storage{DatabasePath: filepath.Join(home, "lore.db")},
	}
}

// Home resolves the data root: $LORE_HOME if set, otherwise $HOME/.lore.
func Home() (string, error) {
	if h := os.Getenv("LORE_HOME"); h != "" {
		return h, nil
	}
	hd, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(hd, ".lore"), nil
}

// Load reads home/config.yaml, applying Default(home) first so any
// field the file omits keeps its documented default. A missing file is
// not an error: Load returns Default(home) unchanged.
func Load(home string) (Config, error) {
	cfg := Default(home)
	path := filepath.Join(home, "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(home, "lore.db")
	}
	return cfg, nil
}

// EnsureHome creates home (and its parents) if it doesn't already exist.
func EnsureHome(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("create lore home %s: %w", home, err)
	}
	return nil
}
