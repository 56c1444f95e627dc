// Package opencode implements the adapter for OpenCode's multi-file
// session storage, grounded on go-opencode's internal/storage layout:
// session metadata lives at storage/session/<id>.json, and that
// session's messages live as sibling files under
// storage/message/<id>/<message-id>.json. The parser must assemble
// the two locations (spec.md §4.2 "Multi-file per session").
package opencode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/model"
)

const toolName = "opencode"

type sessionDoc struct {
	ID        string `json:"id"`
	Directory string `json:"directory"`
	Title     string `json:"title"`
}

type messageDoc struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"time"`
	Parts     []struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Tool string `json:"tool"`
		Args string `json:"args"`
	} `json:"parts"`
}

// Adapter parses OpenCode's storage/session and storage/message trees.
type Adapter struct {
	// StorageRoot overrides OpenCode's data root (usually
	// ~/.local/share/opencode), for tests.
	StorageRoot string
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) storageRoot() string {
	if a.StorageRoot != "" {
		return a.StorageRoot
	}
	h, _ := os.UserHomeDir()
	return filepath.Join(h, ".local", "share", "opencode")
}

func (a *Adapter) sessionRoot() string { return filepath.Join(a.storageRoot(), "storage", "session") }
func (a *Adapter) messageRoot() string { return filepath.Join(a.storageRoot(), "storage", "message") }

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "OpenCode multi-file session storage",
		FilePatterns: []string{filepath.Join(a.sessionRoot(), "*.json")},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(a.storageRoot())
	return err == nil
}

func (a *Adapter) WatchRoots() ([]string, error) {
	return []string{a.sessionRoot(), a.messageRoot()}, nil
}

func (a *Adapter) FindSources() ([]string, error) {
	var out []string
	entries, err := os.ReadDir(a.sessionRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(a.sessionRoot(), e.Name()))
		}
	}
	return out, nil
}

// Matches claims both the session metadata file and, indirectly, its
// message directory: a write under storage/message/<id>/ is resolved
// back to the owning storage/session/<id>.json path by the daemon
// before dispatch, since the engine's cursor is keyed on the session
// file, not the individual message files.
func (a *Adapter) Matches(path string) bool {
	return filepath.Dir(path) == a.sessionRoot() && strings.HasSuffix(path, ".json")
}

// ResolveMessageEvent maps a message-file event back to its owning
// session file, for the daemon's watcher to re-key storage/message/
// writes before calling Matches/Parse.
func (a *Adapter) ResolveMessageEvent(path string) (string, bool) {
	root := a.messageRoot()
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}
	rel := strings.TrimPrefix(path, root+string(filepath.Separator))
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 {
		return "", false
	}
	return filepath.Join(a.sessionRoot(), parts[0]+".json"), true
}

func (a *Adapter) Parse(path string) ([]adapter.ParsedSession, error) {
	if !a.Matches(path) {
		return nil, adapter.NotOwned(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	msgDir := filepath.Join(a.messageRoot(), doc.ID)
	entries, err := os.ReadDir(msgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read message dir %s: %w", msgDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var messages []model.Message
	idx := 0
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(msgDir, name))
		if err != nil {
			continue // a single unreadable message file is skipped, not fatal
		}
		var m messageDoc
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		text := joinParts(m)
		if text == "" {
			continue
		}
		role := model.RoleAssistant
		switch m.Role {
		case "user":
			role = model.RoleHuman
		case "system":
			role = model.RoleSystem
		}
		ts := time.Now().UTC()
		if m.CreatedAt > 0 {
			ts = time.UnixMilli(m.CreatedAt).UTC()
		}
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		messages = append(messages, model.Message{
			ID:        id,
			Index:     idx,
			Timestamp: ts,
			Role:      role,
			Content:   text,
		})
		idx++
	}
	if len(messages) == 0 {
		return nil, nil
	}

	sess := model.Session{
		ID:               doc.ID,
		Tool:             toolName,
		StartedAt:        messages[0].Timestamp,
		WorkingDirectory: doc.Directory,
		Model:            doc.Title,
		SourcePath:       path,
		MessageCount:     len(messages),
	}
	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}

func joinParts(m messageDoc) string {
	var sb strings.Builder
	for _, p := range m.Parts {
		switch p.Type {
		case "text":
			sb.WriteString(p.Text)
		case "tool":
			fmt.Fprintf(&sb, "[tool_use %s] %s", p.Tool, p.Args)
		}
	}
	return strings.TrimSpace(sb.String())
}
