// Package githooks installs the post-commit and prepare-commit-msg
// hooks lore uses to backward-link a fresh commit to its sessions,
// grounded verbatim on entire-cli's strategy/hooks.go marker-comment
// idempotent installer (InstallGitHook, writeHookFile).
package githooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const hookMarker = "lore git hooks"

var hookNames = []string{"post-commit", "prepare-commit-msg"}

// gitDir returns the repository's git directory, delegating to `git
// rev-parse --git-dir` so worktrees are handled the same way git
// itself handles them.
func gitDir(repoPath string) (string, error) {
	cmd := exec.CommandContext(context.Background(), "git", "rev-parse", "--git-dir")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s is not a git repository: %w", repoPath, err)
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(repoPath, dir)
	}
	return filepath.Clean(dir), nil
}

// IsInstalled reports whether every lore-managed hook is present.
func IsInstalled(repoPath string) bool {
	gd, err := gitDir(repoPath)
	if err != nil {
		return false
	}
	for _, name := range hookNames {
		data, err := os.ReadFile(filepath.Join(gd, "hooks", name))
		if err != nil || !strings.Contains(string(data), hookMarker) {
			return false
		}
	}
	return true
}

// Install writes lore's post-commit and prepare-commit-msg hooks into
// repoPath's hook directory, leaving any hook whose content already
// matches untouched. loreBin is the command lore should invoke from
// the hook, typically "lore" resolved via $PATH.
func Install(repoPath, loreBin string) (installed int, err error) {
	gd, gerr := gitDir(repoPath)
	if gerr != nil {
		return 0, gerr
	}
	hooksDir := filepath.Join(gd, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return 0, fmt.Errorf("create hooks dir: %w", err)
	}

	scripts := map[string]string{
		"post-commit": fmt.Sprintf(`#!/bin/sh
# %s
# Links the just-made commit to the sessions that plausibly produced it.
%s hooks post-commit 2>/dev/null || true
`, hookMarker, loreBin),
		"prepare-commit-msg": fmt.Sprintf(`#!/bin/sh
# %s
# Records the pending commit's context so post-commit can resolve
# which branch it's landing on even in non-interactive merges.
%s hooks prepare-commit-msg "$1" "$2" 2>/dev/null || true
`, hookMarker, loreBin),
	}

	for _, name := range hookNames {
		written, werr := writeHookFile(filepath.Join(hooksDir, name), scripts[name])
		if werr != nil {
			return installed, fmt.Errorf("install %s hook: %w", name, werr)
		}
		if written {
			installed++
		}
	}
	return installed, nil
}

// Remove deletes every lore-managed hook from repoPath, leaving hooks
// it doesn't own (no marker match) untouched.
func Remove(repoPath string) (removed int, err error) {
	gd, gerr := gitDir(repoPath)
	if gerr != nil {
		return 0, gerr
	}
	var errs []string
	for _, name := range hookNames {
		path := filepath.Join(gd, "hooks", name)
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			continue
		}
		if !strings.Contains(string(data), hookMarker) {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to remove hooks: %s", strings.Join(errs, "; "))
	}
	return removed, nil
}

func writeHookFile(path, content string) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return false, fmt.Errorf("write hook file %s: %w", path, err)
	}
	return true, nil
}
