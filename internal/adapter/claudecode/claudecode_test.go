package claudecode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/lore/internal/model"
)

func writeSession(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write session fixture: %v", err)
	}
	return path
}

func TestParseExtractsMessagesAndSkipsSidechain(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	projDir := filepath.Join(home, ".claude", "projects", "-home-dev-app")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	lines := `{"type":"user","uuid":"u1","sessionId":"sess-1","cwd":"/home/dev/app","gitBranch":"main","timestamp":"2026-01-01T10:00:00Z","message":{"content":"fix the bug"}}
{"type":"user","uuid":"u2","isSidechain":true,"timestamp":"2026-01-01T10:00:01Z","message":{"content":"ignored sidechain"}}
{"type":"assistant","uuid":"a1","parentUuid":"u1","timestamp":"2026-01-01T10:01:00Z","message":{"content":[{"type":"text","text":"looking into it"}]}}
`
	path := writeSession(t, projDir, "sess-1.jsonl", lines)

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if r.Session.ID != "sess-1" {
		t.Errorf("session id = %q, want sess-1", r.Session.ID)
	}
	if r.Session.WorkingDirectory != "/home/dev/app" {
		t.Errorf("working directory = %q", r.Session.WorkingDirectory)
	}
	if len(r.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2 (sidechain excluded)", len(r.Messages))
	}
	if r.Messages[0].Role != model.RoleHuman || r.Messages[0].Content != "fix the bug" {
		t.Errorf("first message = %+v", r.Messages[0])
	}
	if r.Messages[1].Role != model.RoleAssistant || r.Messages[1].Content != "looking into it" {
		t.Errorf("second message = %+v", r.Messages[1])
	}
}

func TestParseKeepsStandaloneToolResult(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	projDir := filepath.Join(home, ".claude", "projects", "-home-dev-app")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// The tool_result line carries only a tool_result content part, no
	// text part, so extractText returns "" for it; it must still survive
	// as its own RoleToolResult message (spec.md §8 scenario 1).
	lines := `{"type":"user","uuid":"u1","sessionId":"sess-1","cwd":"/home/dev/app","timestamp":"2026-01-01T10:00:00Z","message":{"content":"run the tests"}}
{"type":"assistant","uuid":"a1","parentUuid":"u1","timestamp":"2026-01-01T10:01:00Z","message":{"content":[{"type":"tool_use","name":"bash","input":{"command":"go test ./..."}}]}}
{"type":"user","uuid":"u2","parentUuid":"a1","timestamp":"2026-01-01T10:01:05Z","message":{"content":[{"type":"tool_result","content":"ok"}]}}
`
	path := writeSession(t, projDir, "sess-1.jsonl", lines)

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	r := results[0]
	if len(r.Messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(r.Messages))
	}
	wantRoles := []model.Role{model.RoleHuman, model.RoleAssistant, model.RoleToolResult}
	for i, want := range wantRoles {
		if r.Messages[i].Role != want {
			t.Errorf("messages[%d].Role = %q, want %q", i, r.Messages[i].Role, want)
		}
	}
	if r.Messages[2].Content != "ok" {
		t.Errorf("tool_result content = %q, want %q", r.Messages[2].Content, "ok")
	}
	if r.Session.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", r.Session.MessageCount)
	}
}

func TestParseRejectsUnownedPath(t *testing.T) {
	a := &Adapter{Home: t.TempDir()}
	if _, err := a.Parse("/tmp/not-claude/foo.jsonl"); err == nil {
		t.Fatal("expected error for unowned path")
	}
}

func TestMatchesRequiresRootAndSuffix(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	owned := filepath.Join(a.root(), "proj", "sess.jsonl")
	if !a.Matches(owned) {
		t.Errorf("expected Matches(%q) = true", owned)
	}
	if a.Matches(filepath.Join(a.root(), "proj", "sess.json")) {
		t.Error("expected non-.jsonl path to not match")
	}
	if a.Matches("/somewhere/else/sess.jsonl") {
		t.Error("expected path outside root to not match")
	}
}
