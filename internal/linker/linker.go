// Package linker connects sessions to the commits they plausibly
// produced: forward linking when a session finalises, and
// backward/manual linking for a commit arriving after the fact.
// Commit enumeration is grounded on entire-cli's git_operations.go
// (go-git repository access, branch reference walking); the scoring
// formula is spec.md §4.4's time/file/branch weighted combination.
package linker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/nstogner/lore/internal/model"
	"github.com/nstogner/lore/internal/store"
)

// Config holds the tunables of spec.md §4.4 and §6.
type Config struct {
	// Threshold is the minimum score for an automatic link. Default 0.5.
	Threshold float64
	// Window is how far, on either side of a commit's time, a session's
	// activity window is searched for backward linking. Default 30m.
	Window time.Duration
	// Margin is the safety margin added to a session's [started,ended]
	// window when forward-linking. Default 0 (documented alternative: 5m).
	Margin time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		Window:    30 * time.Minute,
		Margin:    0,
	}
}

// CommitInfo is the subset of a commit's shape the linker scores against.
type CommitInfo struct {
	SHA       string
	RepoPath  string
	Branch    string
	Timestamp time.Time
	Files     []string
}

// Linker scores and records session-to-commit links.
type Linker struct {
	store store.Store
	cfg   Config
}

func New(st store.Store, cfg Config) *Linker {
	return &Linker{store: st, cfg: cfg}
}

// LinkForward is invoked when a session finalises (engine.OnSessionEnded):
// it enumerates commits across every local branch of repoPath reachable
// at scan time whose commit time falls within the session's
// [started_at-margin, ended_at+margin] window, scores each, and records
// any link at or above threshold.
func (l *Linker) LinkForward(ctx context.Context, sess model.Session, repoPath string) error {
	if sess.EndedAt == nil {
		return fmt.Errorf("linker: session %s has no ended_at, cannot forward-link", sess.ID)
	}
	commits, err := enumerateCommits(repoPath)
	if err != nil {
		return fmt.Errorf("enumerate commits in %s: %w", repoPath, err)
	}

	lo := sess.StartedAt.Add(-l.cfg.Margin)
	hi := sess.EndedAt.Add(l.cfg.Margin)

	messages, err := l.store.GetMessages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("get messages for session %s: %w", sess.ID, err)
	}

	for _, c := range commits {
		if c.Timestamp.Before(lo) || c.Timestamp.After(hi) {
			continue
		}
		fo := FileOverlapRatio(messages, c.Files)
		score := Score(sess, c, l.cfg.Window, fo)
		if score < l.cfg.Threshold {
			continue
		}
		link := &model.SessionLink{
			ID:         linkID(sess.ID, c.SHA),
			SessionID:  sess.ID,
			CommitSHA:  c.SHA,
			RepoPath:   c.RepoPath,
			CreatedAt:  time.Now().UTC(),
			Origin:     model.LinkOriginAutoForward,
			Confidence: score,
		}
		if err := l.store.Link(ctx, link); err != nil {
			return fmt.Errorf("link session %s to commit %s: %w", sess.ID, c.SHA, err)
		}
	}
	return nil
}

// LinkBackward handles a commit arriving (e.g. from the post-commit hook):
// it finds candidate sessions via the union of a time-window search and
// a file-mention search, scores each, and records links at or above
// threshold. Intended to also serve manual `lore link` invocations with
// origin overridden to LinkOriginManual by the caller.
func (l *Linker) LinkBackward(ctx context.Context, c CommitInfo, origin model.LinkOrigin) error {
	winStart := c.Timestamp.Add(-l.cfg.Window).Unix()
	winEnd := c.Timestamp.Add(l.cfg.Window).Unix()

	byTime, err := l.store.FindSessionsActiveDuring(ctx, winStart, winEnd, c.RepoPath)
	if err != nil {
		return fmt.Errorf("find sessions active during commit window: %w", err)
	}
	byFile, err := l.store.FindSessionsTouchingFiles(ctx, c.Files)
	if err != nil {
		return fmt.Errorf("find sessions touching commit files: %w", err)
	}

	candidates := map[string]model.Session{}
	for _, s := range byTime {
		candidates[s.ID] = s
	}
	for _, s := range byFile {
		candidates[s.ID] = s
	}

	for _, sess := range candidates {
		if !pathOwns(sess.WorkingDirectory, c.RepoPath) {
			continue
		}
		messages, err := l.store.GetMessages(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("get messages for session %s: %w", sess.ID, err)
		}
		fo := FileOverlapRatio(messages, c.Files)
		score := Score(sess, c, l.cfg.Window, fo)
		if score < l.cfg.Threshold && origin != model.LinkOriginManual {
			continue
		}
		if origin == model.LinkOriginManual {
			score = 1.0
		}
		link := &model.SessionLink{
			ID:         linkID(sess.ID, c.SHA),
			SessionID:  sess.ID,
			CommitSHA:  c.SHA,
			RepoPath:   c.RepoPath,
			CreatedAt:  time.Now().UTC(),
			Origin:     origin,
			Confidence: score,
		}
		if err := l.store.Link(ctx, link); err != nil {
			return fmt.Errorf("link session %s to commit %s: %w", sess.ID, c.SHA, err)
		}
	}
	return nil
}

// pathOwns enforces spec.md §4.4's path-collision guard component-wise:
// "/a/project" must not match "/a/project-old".
func pathOwns(workingDirectory, repoPath string) bool {
	wd := filepath.Clean(workingDirectory)
	rp := filepath.Clean(repoPath)
	if wd == rp {
		return true
	}
	rel, err := filepath.Rel(rp, wd)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func linkID(sessionID, sha string) string {
	return sessionID + ":" + sha
}

// enumerateCommits walks every local branch head back to its root,
// deduplicating commits reachable from more than one branch, grounded
// on entire-cli's branch/merge-base walking in git_operations.go.
func enumerateCommits(repoPath string) ([]CommitInfo, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	refs, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	seen := map[plumbing.Hash]bool{}
	var out []CommitInfo
	var walkErr error
	refs.ForEach(func(ref *plumbing.Reference) error {
		branch := ref.Name().Short()
		commitIter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
		if err != nil {
			walkErr = err
			return err
		}
		defer commitIter.Close()
		return commitIter.ForEach(func(c *object.Commit) error {
			if seen[c.Hash] {
				return nil
			}
			seen[c.Hash] = true
			files, ferr := commitFiles(c)
			if ferr != nil {
				files = nil
			}
			out = append(out, CommitInfo{
				SHA:       c.Hash.String(),
				RepoPath:  repoPath,
				Branch:    branch,
				Timestamp: c.Committer.When.UTC(),
				Files:     files,
			})
			return nil
		})
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk branch history: %w", walkErr)
	}
	return out, nil
}

func commitFiles(c *object.Commit) ([]string, error) {
	stats, err := c.Stats()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(stats))
	for _, s := range stats {
		files = append(files, s.Name)
	}
	return files, nil
}
