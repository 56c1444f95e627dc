package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/adapter/registry"
)

// stubAdapter claims every *.jsonl file under root.
type stubAdapter struct {
	root string
}

var _ adapter.Adapter = (*stubAdapter)(nil)

func (s *stubAdapter) Info() adapter.Info {
	return adapter.Info{Name: "stub", FilePatterns: []string{filepath.Join(s.root, "*.jsonl")}}
}
func (s *stubAdapter) IsAvailable() bool             { return true }
func (s *stubAdapter) WatchRoots() ([]string, error) { return []string{s.root}, nil }
func (s *stubAdapter) FindSources() ([]string, error) { return nil, nil }
func (s *stubAdapter) Matches(path string) bool {
	return filepath.Dir(path) == s.root && filepath.Ext(path) == ".jsonl"
}
func (s *stubAdapter) Parse(path string) ([]adapter.ParsedSession, error) { return nil, nil }

func TestWatcherDispatchesSettledWrites(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.New([]adapter.Adapter{&stubAdapter{root: root}})
	require.NoError(t, err)

	w, err := New(reg, Config{Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ingested := make(chan string, 4)
	w.Ingest = func(ctx context.Context, path string) error {
		ingested <- path
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)

	// Give the initial recursive Add a moment to register before we write.
	time.Sleep(50 * time.Millisecond)

	target := filepath.Join(root, "session.jsonl")
	require.NoError(t, os.WriteFile(target, []byte("{}\n"), 0o644))

	select {
	case got := <-ingested:
		require.Equal(t, target, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to dispatch the new file")
	}
}

func TestWatcherIgnoresUnclaimedFiles(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.New([]adapter.Adapter{&stubAdapter{root: root}})
	require.NoError(t, err)

	w, err := New(reg, Config{Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ingested := make(chan string, 4)
	w.Ingest = func(ctx context.Context, path string) error {
		ingested <- path
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	select {
	case got := <-ingested:
		t.Fatalf("unexpected ingest of unclaimed file: %s", got)
	case <-time.After(300 * time.Millisecond):
		// expected: nothing dispatched
	}
}
