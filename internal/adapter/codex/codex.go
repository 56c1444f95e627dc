// Package codex implements the adapter for OpenAI Codex CLI's
// line-delimited JSON rollout logs. Same adapter family as Claude
// Code (one JSON record per line) but a different envelope: records
// are Responses-API-shaped items tagged by "type"
// (message/function_call/function_call_output) rather than Claude's
// user/assistant entries.
package codex

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

const toolName = "codex"

// Adapter parses Codex CLI's ~/.codex/sessions/**/*.jsonl rollout logs.
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
	return filepath.Join(a.home(), ".codex", "sessions")
}

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Codex CLI rollout logs",
		FilePatterns: []string{filepath.Join(a.root(), "**", "*.jsonl")},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(filepath.Join(a.home(), ".codex"))
	return err == nil
}

func (a *Adapter) WatchRoots() ([]string, error) {
	return []string{a.root()}, nil
}

func (a *Adapter) FindSources() ([]string, error) {
	var out []string
	root := a.root()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl") {
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
	return strings.HasPrefix(path, a.root()) && strings.HasSuffix(path, ".jsonl")
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

	var (
		messages   []model.Message
		nativeID   string
		cwd        string
		idx        int
	)

	_, err = linejson.Lines(f, func(line string) error {
		if !gjson.Valid(line) {
			return fmt.Errorf("invalid json line")
		}
		rec := gjson.Parse(line)

		if id := rec.Get("session_id").String(); id != "" && nativeID == "" {
			nativeID = id
		}
		if c := rec.Get("cwd").String(); c != "" {
			cwd = c
		}

		typ := rec.Get("type").String()
		ts := parseTimestamp(rec.Get("timestamp").String())

		switch typ {
		case "message":
			role := model.RoleAssistant
			switch rec.Get("role").String() {
			case "user":
				role = model.RoleHuman
			case "system":
				role = model.RoleSystem
			}
			text := extractText(rec.Get("content"))
			if text == "" {
				return nil
			}
			messages = append(messages, model.Message{
				ID:        uuid.New().String(),
				Index:     idx,
				Timestamp: ts,
				Role:      role,
				Content:   text,
			})
			idx++
		case "function_call":
			messages = append(messages, model.Message{
				ID:        uuid.New().String(),
				Index:     idx,
				Timestamp: ts,
				Role:      model.RoleAssistant,
				Content:   fmt.Sprintf("[tool_use %s] %s", rec.Get("name").String(), rec.Get("arguments").Raw),
			})
			idx++
		case "function_call_output":
			messages = append(messages, model.Message{
				ID:        uuid.New().String(),
				Index:     idx,
				Timestamp: ts,
				Role:      model.RoleToolResult,
				Content:   rec.Get("output").String(),
			})
			idx++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	sessionID := nativeID
	if sessionID == "" {
		sessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	}

	sess := model.Session{
		ID:               sessionID,
		Tool:             toolName,
		StartedAt:        messages[0].Timestamp,
		WorkingDirectory: cwd,
		SourcePath:       path,
		MessageCount:     len(messages),
	}
	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}

func extractText(content gjson.Result) string {
	if content.Type == gjson.String {
		return strings.TrimSpace(content.String())
	}
	var sb strings.Builder
	if content.IsArray() {
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "input_text", "output_text", "text":
				sb.WriteString(part.Get("text").String())
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
