// Package claudecode implements the adapter for Claude Code's
// line-delimited JSON session logs, grounded on agentsview's
// internal/parser/claude.go: each line is a JSON object tagged by
// "type" (user/assistant), carrying "uuid"/"parentUuid" for threading,
// "sessionId", "cwd", "gitBranch" and "isSidechain".
package claudecode

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

const toolName = "claude-code"

// systemMessagePrefixes marks assistant-authored lines that are really
// tool/meta scaffolding rather than conversation, per the family's
// convention of splicing status text into the transcript.
var systemMessagePrefixes = []string{
	"This session is being continued",
	"[Request interrupted",
	"<task-notification>",
	"<command-message>",
	"<command-name>",
	"<local-command-",
	"Stop hook feedback:",
}

// Adapter parses Claude Code's ~/.claude/projects/<project>/<uuid>.jsonl logs.
type Adapter struct {
	// Home overrides the user's home directory, for tests.
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
	return filepath.Join(a.home(), ".claude", "projects")
}

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Claude Code CLI session transcripts",
		FilePatterns: []string{filepath.Join(a.root(), "**", "*.jsonl")},
	}
}

func (a *Adapter) IsAvailable() bool {
	_, err := os.Stat(filepath.Join(a.home(), ".claude"))
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
		messages        []model.Message
		nativeSessionID string
		cwd, gitBranch  string
		idx             int
	)

	_, err = linejson.Lines(f, func(line string) error {
		if !gjson.Valid(line) {
			return fmt.Errorf("invalid json line")
		}
		rec := gjson.Parse(line)
		typ := rec.Get("type").String()
		if typ != "user" && typ != "assistant" {
			return nil
		}
		if rec.Get("isSidechain").Bool() || rec.Get("isMeta").Bool() {
			return nil
		}
		if nativeSessionID == "" {
			nativeSessionID = rec.Get("sessionId").String()
		}
		if c := rec.Get("cwd").String(); c != "" {
			cwd = c
		}
		if b := rec.Get("gitBranch").String(); b != "" {
			gitBranch = b
		}

		role := model.RoleAssistant
		if typ == "user" {
			role = model.RoleHuman
		}

		msgUUID := rec.Get("uuid").String()
		parentUUID := rec.Get("parentUuid").String()

		text := extractText(rec)
		if role == model.RoleAssistant && isSystemScaffold(text) {
			return nil
		}
		// A tool result rides in on a user-typed line whose content is
		// entirely a tool_result part, so extractText returns "" for it;
		// check for one before deciding the line is empty.
		toolResult := extractToolResult(rec)
		if text == "" && toolResult == "" {
			return nil
		}

		ts := parseTimestamp(rec.Get("timestamp").String())
		id := msgUUID
		if id == "" {
			id = uuid.New().String()
		}
		parentID := ""
		if parentUUID != "" {
			parentID = parentUUID
		}

		if text != "" {
			messages = append(messages, model.Message{
				ID:        id,
				Index:     idx,
				Timestamp: ts,
				Role:      role,
				Content:   text,
				ParentID:  parentID,
			})
			idx++
		}

		// A tool_result part on a user-typed line is appended as its
		// own canonical message.
		if toolResult != "" {
			messages = append(messages, model.Message{
				ID:        uuid.New().String(),
				Index:     idx,
				Timestamp: ts,
				Role:      model.RoleToolResult,
				Content:   toolResult,
				ParentID:  id,
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

	sessionID := nativeSessionID
	if sessionID == "" {
		sessionID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()
	}

	sess := model.Session{
		ID:               sessionID,
		Tool:             toolName,
		StartedAt:        messages[0].Timestamp,
		EndedAt:          nil, // assigned by the ingestion engine's finalisation logic, not the adapter.
		WorkingDirectory: cwd,
		BranchHistory:    model.AppendBranch(nil, gitBranch),
		SourcePath:       path,
		MessageCount:     len(messages),
	}

	return []adapter.ParsedSession{{Session: sess, Messages: messages}}, nil
}

func extractText(rec gjson.Result) string {
	content := rec.Get("message.content")
	if content.Type == gjson.String {
		return strings.TrimSpace(content.String())
	}
	var sb strings.Builder
	if content.IsArray() {
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "text":
				sb.WriteString(part.Get("text").String())
			case "tool_use":
				fmt.Fprintf(&sb, "[tool_use %s] %s", part.Get("name").String(), part.Get("input").Raw)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func extractToolResult(rec gjson.Result) string {
	content := rec.Get("message.content")
	if !content.IsArray() {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "tool_result" {
			sb.WriteString(part.Get("content").String())
		}
	}
	return strings.TrimSpace(sb.String())
}

func isSystemScaffold(text string) bool {
	for _, prefix := range systemMessagePrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
