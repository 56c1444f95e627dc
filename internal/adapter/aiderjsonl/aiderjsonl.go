// Package aiderjsonl implements the adapter for Aider's append-only
// JSON Lines chat log (.aider.chat.jsonl, one JSON object per line).
// Same line-delimited JSON family as
// Claude Code and Codex.
package aiderjsonl

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/adapter/linejson"
	"github.com/nstogner/lore/internal/model"
)

const (
	toolName    = "aider"
	logFileName = ".aider.chat.jsonl"
)

// Adapter parses Aider's structured .aider.chat.jsonl log, one record
// per line, when present alongside the markdown transcript.
type Adapter struct {
	Roots []string
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Aider structured JSONL event log",
		FilePatterns: []string{filepath.Join("**", logFileName)},
	}
}

func (a *Adapter) IsAvailable() bool {
	for _, root := range a.Roots {
		if _, err := os.Stat(filepath.Join(root, logFileName)); err == nil {
			return true
		}
	}
	return false
}

func (a *Adapter) WatchRoots() ([]string, error) {
	return a.Roots, nil
}

func (a *Adapter) FindSources() ([]string, error) {
	var out []string
	for _, root := range a.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !d.IsDir() && filepath.Base(path) == logFileName {
				out = append(out, path)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return out, nil
}

func (a *Adapter) Matches(path string) bool {
	return filepath.Base(path) == logFileName
}

func (a *Adapter) Parse(path string) ([]adapter.ParsedSession, error) {
	if !a.Matches(path) {
		return nil, adapter.NotOwned(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var messages []model.Message
	idx := 0

	_, err = linejson.Lines(f, func(line string) error {
		if !gjson.Valid(line) {
			return fmt.Errorf("invalid json line")
		}
		rec := gjson.Parse(line)
		role := model.RoleAssistant
		switch rec.Get("role").String() {
		case "user":
			role = model.RoleHuman
		case "tool", "tool_result":
			role = model.RoleToolResult
		}
		text := strings.TrimSpace(rec.Get("content").String())
		if text == "" {
			return nil
		}
		ts := time.Now().UTC()
		if raw := rec.Get("timestamp").String(); raw != "" {
			if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
				ts = t
			}
		}
		messages = append(messages, model.Message{
			ID:        uuid.New().String(),
			Index:     idx,
			Timestamp: ts,
			Role:      role,
			Content:   text,
		})
		idx++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	sessionID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	sess := model.Session{
		ID:               sessionID,
		Tool:             toolName,
		StartedAt:        messages[0].Timestamp,
		WorkingDirectory: filepath.Dir(path),
		SourcePath:       path,
		MessageCount:     len(messages),
	}
	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}
