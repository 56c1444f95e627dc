// Package continuedev implements the adapter for Continue.dev's
// whole-file JSON session documents under ~/.continue/sessions/<id>.json.
package continuedev

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

const toolName = "continue-dev"

var fields = wholejson.FieldMap{
	ArrayPath:    "history",
	RoleField:    "message.role",
	ContentField: "message.content",
	RoleValues: map[string]model.Role{
		"user":      model.RoleHuman,
		"assistant": model.RoleAssistant,
		"system":    model.RoleSystem,
		"tool":      model.RoleToolResult,
	},
}

// Adapter parses ~/.continue/sessions/<id>.json.
type Adapter struct {
	Home string
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) home() string {
	if a.Home != "" {
		return a.Home
	}
	h, _ := os.UserHomeDir()
	return h
}

func (a *Adapter) root() string {
	return filepath.Join(a.home(), ".continue", "sessions")
}

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Continue.dev IDE-extension sessions",
		FilePatterns: []string{filepath.Join(a.root(), "*.json")},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(filepath.Join(a.home(), ".continue"))
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
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(a.root(), e.Name()))
		}
	}
	return out, nil
}

func (a *Adapter) Matches(path string) bool {
	return filepath.Dir(path) == a.root() && strings.HasSuffix(path, ".json")
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

	id := strings.TrimSuffix(filepath.Base(path), ".json")
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
