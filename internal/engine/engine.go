// Package engine implements the ingestion algorithm of spec.md §4.3:
// stat-based skip, adapter.Parse, transactional merge into the store,
// finalisation detection, and SessionEnded event emission. Grounded on
// ccrider's importer.go (skip-if-unchanged, per-file transaction) and
// on the per-path serialisation requirement of spec.md §5.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nstogner/lore/internal/adapter"
	"github.com/nstogner/lore/internal/adapter/registry"
	"github.com/nstogner/lore/internal/model"
	"github.com/nstogner/lore/internal/store"
)

// Config holds the tunables named in spec.md §6's finalisation and
// daemon sections that the engine itself consults.
type Config struct {
	// InactivityTimeout is how long a source may go unmodified before
	// its session is finalised. Default 30 minutes.
	InactivityTimeout time.Duration
	// ParseTimeout bounds a single adapter.Parse call. Default 30s.
	ParseTimeout time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 30 * time.Minute,
		ParseTimeout:      30 * time.Second,
	}
}

// Engine is the ingestion core: it owns no state of its own beyond the
// per-path locks used to serialise concurrent events for the same
// source (spec.md §5).
type Engine struct {
	store    store.Store
	registry *registry.Registry
	cfg      Config
	log      *slog.Logger

	locks sync.Map // source path -> *sync.Mutex

	// OnSessionEnded is invoked, after commit, for every session that
	// transitioned to finalised in this merge. May be nil.
	OnSessionEnded func(ctx context.Context, sessionID string)
}

// New builds an Engine over st and reg.
func New(st store.Store, reg *registry.Registry, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: st, registry: reg, cfg: cfg, log: log}
}

func (e *Engine) lockFor(path string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Ingest runs the full algorithm of spec.md §4.3 for a single source
// path, dispatched from a filesystem event or a periodic scan.
func (e *Engine) Ingest(ctx context.Context, path string) error {
	a := e.registry.Match(path)
	if a == nil {
		return nil // no adapter claims this path; not an error
	}

	mu := e.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// Missing files are not errors (spec.md §4.3 Failures).
			// Nothing is merged for a deleted source: its sessions keep
			// their stored state and deletion does not finalise them.
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, statErr)
	}

	if unchanged, err := e.unchanged(ctx, path, info); err != nil {
		return err
	} else if unchanged {
		return nil
	}

	results, err := e.parseWithBudget(ctx, a, path)
	if err != nil {
		// Parse errors quarantine the source for this event: log at
		// debug, leave the cursor untouched so the next modification
		// retries (spec.md §4.3 Failures).
		e.log.Debug("ingest: quarantined source after parse error",
			"source_path", path, "tool", a.Info().Name, "error", err)
		return nil
	}

	hash, err := contentHashPrefix(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	cursor := &model.SourceCursor{
		SourcePath:        path,
		Tool:              a.Info().Name,
		LastSizeBytes:     info.Size(),
		LastModified:      info.ModTime(),
		ContentHashPrefix: hash,
		LastImportedAt:    time.Now().UTC(),
	}

	for i, r := range results {
		// Only the final parsed session for this source advances the
		// cursor; earlier ones (forked/resumed sessions sharing one
		// file) are merged without touching the bookmark twice.
		var c *model.SourceCursor
		if i == len(results)-1 {
			c = cursor
		}
		if err := e.mergeOne(ctx, a, path, r, info, c); err != nil {
			return fmt.Errorf("merge %s: %w", path, err)
		}
	}
	if len(results) == 0 {
		// Nothing parsed (e.g. an empty or entirely-malformed file) —
		// still advance the cursor so we don't retry forever.
		if err := e.store.UpsertCursor(ctx, cursor); err != nil {
			return fmt.Errorf("advance cursor for %s: %w", path, err)
		}
	}
	return nil
}

func (e *Engine) unchanged(ctx context.Context, path string, info os.FileInfo) (bool, error) {
	cursor, err := e.store.GetCursor(ctx, path)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("get cursor: %w", err)
	}
	if cursor.LastSizeBytes != info.Size() || !cursor.LastModified.Equal(info.ModTime()) {
		return false, nil
	}
	hash, err := contentHashPrefix(path)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", path, err)
	}
	if hash != cursor.ContentHashPrefix {
		return false, nil
	}
	// An unchanged source is still re-ingested once after it has been
	// idle for the inactivity threshold, so its session can finalise.
	threshold := e.cfg.InactivityTimeout
	if threshold < 0 {
		threshold = DefaultConfig().InactivityTimeout
	}
	idleSince := info.ModTime().Add(threshold)
	if time.Now().After(idleSince) && cursor.LastImportedAt.Before(idleSince) {
		return false, nil
	}
	return true, nil
}

func (e *Engine) parseWithBudget(ctx context.Context, a adapter.Adapter, path string) ([]adapter.ParsedSession, error) {
	type result struct {
		sessions []adapter.ParsedSession
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		sessions, err := a.Parse(path)
		ch <- result{sessions, err}
	}()

	budget := e.cfg.ParseTimeout
	if budget <= 0 {
		budget = DefaultConfig().ParseTimeout
	}
	select {
	case r := <-ch:
		return r.sessions, r.err
	case <-time.After(budget):
		return nil, fmt.Errorf("parse exceeded %s budget", budget)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) mergeOne(ctx context.Context, a adapter.Adapter, path string, r adapter.ParsedSession, info os.FileInfo, cursor *model.SourceCursor) error {
	sess := r.Session

	existing, err := e.store.GetSession(ctx, sess.ID)
	switch {
	case err == nil:
		merged := existing.BranchHistory
		for _, b := range sess.BranchHistory {
			merged = model.AppendBranch(merged, b)
		}
		sess.BranchHistory = merged
		if sess.StartedAt.IsZero() {
			sess.StartedAt = existing.StartedAt
		}
	case err == store.ErrNotFound:
		// no prior session to merge branch history or StartedAt from.
	default:
		return fmt.Errorf("get existing session: %w", err)
	}
	// r.Messages is always the adapter's full re-parse of the source, not
	// a suffix, so the stored count is simply its length (message-level
	// dedup in the store means re-inserting the same ids is harmless).
	sess.MessageCount = len(r.Messages)

	finalised, endedAt := e.decideFinalisation(existing, info, r.Messages, r.Completed)
	if finalised {
		sess.EndedAt = &endedAt
	} else {
		sess.EndedAt = nil
	}

	inserted, err := e.store.MergeSession(ctx, &sess, r.Messages, cursor)
	if err != nil {
		return err
	}

	wasFinalised := existing != nil && existing.EndedAt != nil
	if finalised && !wasFinalised && e.OnSessionEnded != nil {
		e.OnSessionEnded(ctx, sess.ID)
	}

	e.log.Debug("ingest: merged session",
		"session_id", sess.ID, "tool", a.Info().Name, "source_path", path,
		"messages_inserted", inserted, "finalised", finalised)
	return nil
}

// decideFinalisation implements spec.md §4.3 step 3's finalisation
// rules: inactivity timeout or native completion marker. It only runs
// for a source that still exists; a deleted source is not finalised.
func (e *Engine) decideFinalisation(existing *model.Session, info os.FileInfo, msgs []model.Message, completed bool) (bool, time.Time) {
	if existing != nil && existing.EndedAt != nil {
		// Re-finalisation is idempotent; ended_at only advances, never
		// regresses (spec.md §8 Finalisation stickiness).
		return true, *existing.EndedAt
	}
	lastActivity := info.ModTime()
	if len(msgs) > 0 {
		if last := msgs[len(msgs)-1].Timestamp; last.After(lastActivity) {
			lastActivity = last
		}
	}
	if completed {
		// The native format already marks this session as finished; no
		// need to wait out the inactivity timeout.
		return true, lastActivity
	}
	threshold := e.cfg.InactivityTimeout
	if threshold < 0 {
		threshold = DefaultConfig().InactivityTimeout
	}
	if time.Since(lastActivity) >= threshold {
		return true, lastActivity.Add(threshold)
	}
	return false, time.Time{}
}

func contentHashPrefix(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	// A content hash over the whole file is cheap relative to the
	// parse it's guarding and avoids false "unchanged" positives from
	// mtime granularity on some filesystems.
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
