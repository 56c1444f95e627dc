package codex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/lore/internal/model"
)

func TestParseExtractsMessageAndToolItems(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	root := a.root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	lines := `{"type":"message","role":"user","session_id":"rollout-1","cwd":"/home/dev/app","timestamp":"2026-02-01T09:00:00Z","content":"add a test"}
{"type":"function_call","name":"apply_patch","arguments":"{\"path\":\"a.go\"}","timestamp":"2026-02-01T09:00:05Z"}
{"type":"function_call_output","output":"patch applied","timestamp":"2026-02-01T09:00:06Z"}
{"type":"message","role":"assistant","timestamp":"2026-02-01T09:00:10Z","content":[{"type":"output_text","text":"done"}]}
`
	path := filepath.Join(root, "rollout-1.jsonl")
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
	r := results[0]
	if r.Session.ID != "rollout-1" {
		t.Errorf("session id = %q", r.Session.ID)
	}
	if len(r.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(r.Messages))
	}
	if r.Messages[0].Role != model.RoleHuman {
		t.Errorf("first message role = %v, want human", r.Messages[0].Role)
	}
	if r.Messages[1].Role != model.RoleAssistant {
		t.Errorf("function_call role = %v, want assistant", r.Messages[1].Role)
	}
	if r.Messages[2].Role != model.RoleToolResult || r.Messages[2].Content != "patch applied" {
		t.Errorf("function_call_output message = %+v", r.Messages[2])
	}
}

func TestParseDerivesSessionIDWhenAbsent(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	root := a.root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(root, "anon.jsonl")
	content := `{"type":"message","role":"user","timestamp":"2026-02-01T09:00:00Z","content":"hi"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if results[0].Session.ID == "" {
		t.Error("expected a derived session id")
	}
}

func TestParseEmptyFileReturnsNoSessions(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	root := a.root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(root, "empty.jsonl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
