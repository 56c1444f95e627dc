package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutoLink.Threshold != 0.5 {
		t.Errorf("AutoLink.Threshold = %v, want 0.5", cfg.AutoLink.Threshold)
	}
	if cfg.Daemon.ScanIntervalSeconds != 60 {
		t.Errorf("Daemon.ScanIntervalSeconds = %d, want 60", cfg.Daemon.ScanIntervalSeconds)
	}
	if cfg.Storage.DatabasePath != filepath.Join(home, "lore.db") {
		t.Errorf("Storage.DatabasePath = %q", cfg.Storage.DatabasePath)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	home := t.TempDir()
	yamlDoc := `
watchers: ["claude-code"]
auto_link:
  threshold: 0.8
  window_minutes: 15
daemon:
  scan_interval_seconds: 30
`
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Watchers) != 1 || cfg.Watchers[0] != "claude-code" {
		t.Errorf("Watchers = %v", cfg.Watchers)
	}
	if cfg.AutoLink.Threshold != 0.8 {
		t.Errorf("AutoLink.Threshold = %v, want 0.8", cfg.AutoLink.Threshold)
	}
	if cfg.AutoLink.WindowMinutes != 15 {
		t.Errorf("AutoLink.WindowMinutes = %d, want 15", cfg.AutoLink.WindowMinutes)
	}
	if cfg.Daemon.ScanIntervalSeconds != 30 {
		t.Errorf("Daemon.ScanIntervalSeconds = %d, want 30", cfg.Daemon.ScanIntervalSeconds)
	}
	// Finalisation wasn't in the file, so its default survives.
	if cfg.Finalisation.InactivityMinutes != 30 {
		t.Errorf("Finalisation.InactivityMinutes = %d, want 30 (default)", cfg.Finalisation.InactivityMinutes)
	}
}

func TestHomeRespectsEnvOverride(t *testing.T) {
	t.Setenv("LORE_HOME", "/tmp/custom-lore-home")
	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	if home != "/tmp/custom-lore-home" {
		t.Errorf("Home() = %q, want /tmp/custom-lore-home", home)
	}
}
