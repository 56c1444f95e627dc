package roocode

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
	taskDir := filepath.Join(a.root(), "1700000001000")
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := `[
		{"role":"user","content":"add a cli flag"},
		{"role":"assistant","content":"wired up --verbose"}
	]`
	path := filepath.Join(taskDir, historyFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wantID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	if results[0].Session.ID != wantID {
		t.Errorf("session id = %q, want %q derived from the source path", results[0].Session.ID, wantID)
	}
	if results[0].Session.Tool != toolName {
		t.Errorf("tool = %q, want %q", results[0].Session.Tool, toolName)
	}
	if len(results[0].Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(results[0].Messages))
	}
	if results[0].Messages[0].Role != model.RoleHuman {
		t.Errorf("first message role = %v, want human", results[0].Messages[0].Role)
	}
}

func TestMatchesRejectsFilesOutsideRoot(t *testing.T) {
	configHome := t.TempDir()
	a := &Adapter{ConfigHome: configHome}
	if a.Matches("/tmp/unrelated/" + historyFile) {
		t.Error("expected path outside root to not match")
	}
}
