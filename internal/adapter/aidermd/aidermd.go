// Package aidermd implements the adapter for Aider's markdown chat
// history log (.aider.chat.history.md), written to the root of every
// repository Aider is run in. Grounded on spec.md §4.2's "Markdown
// logs" family: prose divided by stable heading markers that
// delineate human turns, assistant turns, and tool output.
package aidermd

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/model"
)

const (
	toolName     = "aider"
	logFileName  = ".aider.chat.history.md"
	humanMarker  = "#### "
	blockMarker  = "```"
)

// Adapter parses .aider.chat.history.md files found anywhere under
// the configured watch roots (one per repository Aider was used in).
type Adapter struct {
	// Roots lists repository directories to scan for a chat history
	// file, since Aider's log has no single canonical home directory.
	// With no roots the adapter finds no sources and IsAvailable
	// reports false.
	Roots []string
}

var _ adapter.Adapter = (*Adapter)(nil)

func (a *Adapter) Info() adapter.Info {
	return adapter.Info{
		Name:         toolName,
		Description:  "Aider markdown chat history",
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

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var (
		messages   []model.Message
		idx        int
		role       = model.RoleAssistant
		buf        strings.Builder
		inFence    bool
		lastTime   = info.ModTime()
	)

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		messages = append(messages, model.Message{
			ID:        uuid.New().String(),
			Index:     idx,
			Timestamp: lastTime,
			Role:      role,
			Content:   text,
		})
		idx++
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, blockMarker) {
			inFence = !inFence
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		if inFence {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		if strings.HasPrefix(line, humanMarker) {
			flush()
			role = model.RoleHuman
			buf.WriteString(strings.TrimPrefix(line, humanMarker))
			buf.WriteByte('\n')
			continue
		}
		if strings.HasPrefix(trimmed, "# aider chat started at") {
			flush()
			role = model.RoleSystem
			continue
		}
		// A non-marker line after a human turn starts the assistant
		// reply; any other line belongs to the current turn until the
		// next human marker.
		if role == model.RoleHuman {
			flush()
			role = model.RoleAssistant
		} else if buf.Len() == 0 {
			role = model.RoleAssistant
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	if err := sc.Err(); err != nil {
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
