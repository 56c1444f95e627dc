package aiderjsonl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/lore/internal/model"
)

func TestParseExtractsRoles(t *testing.T) {
	root := t.TempDir()
	a := &Adapter{Roots: []string{root}}
	path := filepath.Join(root, logFileName)

	lines := `{"role":"user","content":"add logging","timestamp":"2026-03-01T08:00:00Z"}
{"role":"assistant","content":"added a logger call"}
{"role":"tool_result","content":"tests passed"}
`
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	msgs := results[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}
	if msgs[0].Role != model.RoleHuman {
		t.Errorf("msgs[0].Role = %v, want human", msgs[0].Role)
	}
	if msgs[1].Role != model.RoleAssistant {
		t.Errorf("msgs[1].Role = %v, want assistant", msgs[1].Role)
	}
	if msgs[2].Role != model.RoleToolResult {
		t.Errorf("msgs[2].Role = %v, want tool_result", msgs[2].Role)
	}
}

func TestIsAvailableChecksEveryRoot(t *testing.T) {
	root1 := t.TempDir()
	root2 := t.TempDir()
	a := &Adapter{Roots: []string{root1, root2}}
	if a.IsAvailable() {
		t.Fatal("expected not available before any log exists")
	}
	if err := os.WriteFile(filepath.Join(root2, logFileName), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !a.IsAvailable() {
		t.Error("expected available once a root has the log file")
	}
}

func TestMatchesChecksBaseName(t *testing.T) {
	a := &Adapter{}
	if !a.Matches("/some/project/" + logFileName) {
		t.Error("expected match on base name")
	}
	if a.Matches("/some/project/other.jsonl") {
		t.Error("expected no match for unrelated file")
	}
}
