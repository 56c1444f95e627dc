package continuedev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/nstogner/lore/internal/model"
)

func TestParseUsesFileNameAsSessionIDWhenUUID(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	root := a.root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	id := uuid.New().String()
	doc := `{"history":[
		{"message":{"role":"user","content":"explain this function"}},
		{"message":{"role":"assistant","content":"it sorts the slice"}}
	]}`
	path := filepath.Join(root, id+".json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Session.ID != id {
		t.Errorf("session id = %q, want %q", results[0].Session.ID, id)
	}
	if len(results[0].Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(results[0].Messages))
	}
	if results[0].Messages[0].Role != model.RoleHuman {
		t.Errorf("first message role = %v, want human", results[0].Messages[0].Role)
	}
}

func TestParseFallsBackToDerivedIDForNonUUIDFileName(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	root := a.root()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc := `{"history":[{"message":{"role":"user","content":"hi"}}]}`
	path := filepath.Join(root, "not-a-uuid.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	results, err := a.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := uuid.Parse(results[0].Session.ID); err != nil {
		t.Errorf("expected a derived uuid session id, got %q", results[0].Session.ID)
	}
}

func TestMatchesRequiresDirectChild(t *testing.T) {
	home := t.TempDir()
	a := &Adapter{Home: home}
	if !a.Matches(filepath.Join(a.root(), "sess.json")) {
		t.Error("expected direct child to match")
	}
	if a.Matches(filepath.Join(a.root(), "nested", "sess.json")) {
		t.Error("expected nested path to not match")
	}
}
