package aidermd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nstogner/lore/internal/model"
)

func TestParseSplitsTurnsOnHumanMarkerAndRespectsFences(t *testing.T) {
	root := t.TempDir()
	a := &Adapter{Roots: []string{root}}
	path := filepath.Join(root, logFileName)

	content := "# aider chat started at 2026-03-02 10:00:00\n\n" +
		"#### fix the off by one error\n\n" +
		"Sure, here's the fix:\n\n" +
		"```go\nfor i := 0; i <= n; i++ {\n```\n\n" +
		"#### looks good, thanks\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
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
		t.Fatalf("len(messages) = %d, want 3: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != model.RoleHuman {
		t.Errorf("msgs[0].Role = %v, want human", msgs[0].Role)
	}
	if msgs[2].Role != model.RoleHuman {
		t.Errorf("msgs[2].Role = %v, want human", msgs[2].Role)
	}
	// The assistant turn's fenced code block must survive intact, not be
	// mistaken for a new turn boundary.
	if !strings.Contains(msgs[1].Content, "for i := 0; i <= n; i++") {
		t.Errorf("assistant turn lost fenced content: %q", msgs[1].Content)
	}
}

func TestParseEmptyFileReturnsNoSessions(t *testing.T) {
	root := t.TempDir()
	a := &Adapter{Roots: []string{root}}
	path := filepath.Join(root, logFileName)
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
