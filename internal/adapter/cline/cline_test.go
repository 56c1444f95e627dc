package cline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nstogner/lore/internal/model"
)

func TestParseReadsPerTaskHistory(t *testing.T) {
	configHome := t.TempDir()
	a := &Adapter{ConfigHome: configHome}
	taskDir := filepath.Join(a.root(), "1700000000000")
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := `[
		{"role":"user","content":"implement retry logic"},
		{"role":"assistant","content":"added exponential backoff"}
	]`
	path := filepath.Join(taskDir, historyFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := a.FindSources()
	if err != nil {
		t.Fatalf("FindSources: %v", err)
	}
	if len(found) != 1 || found[0] != path {
		t.Fatalf("FindSources = %v, want [%s]", found, path)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wantID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	if results[0].Session.ID != wantID {
		t.Errorf("session id = %q, want %q derived from the source path", results[0].Session.ID, wantID)
	}
	if len(results[0].Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(results[0].Messages))
	}
	if results[0].Messages[1].Role != model.RoleAssistant {
		t.Errorf("second message role = %v, want assistant", results[0].Messages[1].Role)
	}
}

func TestFindSourcesSkipsTaskDirsMissingHistory(t *testing.T) {
	configHome := t.TempDir()
	a := &Adapter{ConfigHome: configHome}
	if err := os.MkdirAll(filepath.Join(a.root(), "empty-task"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	found, err := a.FindSources()
	if err != nil {
		t.Fatalf("FindSources: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("FindSources = %v, want none", found)
	}
}
