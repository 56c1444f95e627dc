// Package cline implements the adapter for the Cline VS Code
// extension's on-disk task storage: one directory per task under the
// extension's globalStorage path, holding an
// api_conversation_history.json file with an Anthropic-shaped message
// array. Grounded on spec.md §4.2's "IDE-extension on-disk storage"
// family.
package cline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/adapter/wholejson"
	"github.com/nstogner/lore/internal/model"
)

const (
	toolName      = "cline"
	extensionDirN = "saoudrizwan.claude-dev"
	historyFile   = "api_conversation_history.json"
)

var fields = wholejson.FieldMap{
	ArrayPath:    "@this",
	RoleField:    "role",
	ContentField: "content",
	RoleValues: map[string]model.Role{
		"user":      model.RoleHuman,
		"assistant": model.RoleAssistant,
	},
}

// Adapter parses Cline's per-task api_conversation_history.json files.
type Adapter struct {
	// ConfigHome overrides the editor's globalStorage parent, for
	// tests and for non-default VS Code config locations.
	ConfigHome string
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) configHome() string {
	if a.ConfigHome != "" {
		return a.ConfigHome
	}
	h, _ := os.UserHomeDir()
	return filepath.Join(h, ".config", "Code", "User")
}

func (a *Adapter) root() string {
	return filepath.Join(a.configHome(), "globalStorage", extensionDirN, "tasks")
}

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Cline VS Code extension task history",
		FilePatterns: []string{filepath.Join(a.root(), "*", historyFile)},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(a.root())
	return err == nil
}

func (a *Adapter) WatchRoots() ([]string, error) { return []string{a.root()}, nil }

func (a *Adapter) FindSources() ([]string, error) {
	var out []string
	entries, err := os.ReadDir(a.root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(a.root(), e.Name(), historyFile)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *Adapter) Matches(path string) bool {
	return strings.HasPrefix(path, a.root()) && filepath.Base(path) == historyFile
}

func (a *Adapter) Parse(path string) ([]adapter.ParsedSession, error) {
	if !a.Matches(path) {
		return nil, adapter.NotOwned(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	messages, err := wholejson.ParseMessages(data, fields)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	taskID := filepath.Base(filepath.Dir(path))
	id := taskID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	}

	sess := model.Session{
		ID:           id,
		Tool:         toolName,
		StartedAt:    messages[0].Timestamp,
		SourcePath:   path,
		MessageCount: len(messages),
	}
	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}
