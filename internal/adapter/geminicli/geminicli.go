// Package geminicli implements the adapter for Gemini CLI's whole-file
// JSON session checkpoints under ~/.gemini/tmp/<project-hash>/chats/<id>.json.
package geminicli

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

const toolName = "gemini-cli"

var fields = wholejson.FieldMap{
	ArrayPath:    "messages",
	RoleField:    "role",
	ContentField: "content",
	RoleValues: map[string]model.Role{
		"user":  model.RoleHuman,
		"model": model.RoleAssistant,
	},
}

// Adapter parses ~/.gemini/tmp/**/chats/*.json checkpoint files.
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
	return filepath.Join(a.home(), ".gemini", "tmp")
}

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Gemini CLI chat checkpoints",
		FilePatterns: []string{filepath.Join(a.root(), "**", "chats", "*.json")},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(filepath.Join(a.home(), ".gemini"))
	return err == nil
}

func (a *Adapter) WatchRoots() ([]string, error) { return []string{a.root()}, nil }

func (a *Adapter) FindSources() ([]string, error) {
	var out []string
	err := filepath.Walk(a.root(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && filepath.Base(filepath.Dir(path)) == "chats" && strings.HasSuffix(path, ".json") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) Matches(path string) bool {
	return strings.HasPrefix(path, a.root()) && filepath.Base(filepath.Dir(path)) == "chats" && strings.HasSuffix(path, ".json")
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

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	sess := model.Session{
		ID:           id,
		Tool:         toolName,
		StartedAt:    messages[0].Timestamp,
		SourcePath:   path,
		MessageCount: len(messages),
	}
	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}
