// Package store defines the persistence contract for sessions,
// messages, links and source cursors. The only implementation is
// internal/store/sqlite; this package exists so the engine, linker and
// IPC layer depend on an interface rather than a concrete database.
package store

import (
	"context"
	"errors"

	"github.com/nstogner/lore/internal/model"
)

// ErrNotFound is returned when a lookup by exact id finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrAmbiguousID is returned by GetSession when a prefix resolves to
// more than one session; Candidates lists the matching ids.
type ErrAmbiguousID struct {
	Prefix     string
	Candidates []string
}

func (e *ErrAmbiguousID) Error() string {
	return "store: ambiguous id prefix " + e.Prefix
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	WorkingDirectory string
	Tool             string
	Since, Until     *int64 // unix seconds, both optional
}

// SessionStore manages sessions and their messages.
type SessionStore interface {
	// UpsertSession creates a session or updates it in place by ID.
	// Only EndedAt, BranchHistory, Model, Metadata and MessageCount are
	// mutable after first write; StartedAt, Tool and WorkingDirectory
	// are fixed at insert.
	UpsertSession(ctx context.Context, s *model.Session) error

	// InsertMessagesMissing batch-appends messages, skipping any whose
	// (session_id, index) already exists. This is the dedup hinge that
	// lets adapters safely re-parse whole files on every ingest.
	InsertMessagesMissing(ctx context.Context, sessionID string, msgs []model.Message) (inserted int, err error)

	// GetSession resolves id or an unambiguous prefix of it.
	GetSession(ctx context.Context, idOrPrefix string) (*model.Session, error)

	// ListSessions returns sessions matching filter, most recent first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// GetMessages returns a session's messages ordered by index.
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, error)

	// FindSessionsActiveDuring returns sessions in repoPath whose
	// [started_at, ended_at] window intersects [tStart, tEnd].
	FindSessionsActiveDuring(ctx context.Context, tStart, tEnd int64, repoPath string) ([]model.Session, error)

	// FindSessionsTouchingFiles returns sessions that mention any of
	// paths in a message's content.
	FindSessionsTouchingFiles(ctx context.Context, paths []string) ([]model.Session, error)
}

// LinkStore manages session-to-commit links.
type LinkStore interface {
	// Link inserts a link unique on (session_id, commit_sha). Re-linking
	// the same pair is a no-op that preserves the earlier origin.
	Link(ctx context.Context, link *model.SessionLink) error

	// GetLinksForSession returns every link for sessionID.
	GetLinksForSession(ctx context.Context, sessionID string) ([]model.SessionLink, error)

	// GetLinksForCommit returns every link recorded against sha.
	GetLinksForCommit(ctx context.Context, repoPath, sha string) ([]model.SessionLink, error)

	// Unlink removes a single link by id.
	Unlink(ctx context.Context, linkID string) error
}

// CursorStore manages per-source ingestion bookmarks.
type CursorStore interface {
	// UpsertCursor creates or replaces the cursor for its SourcePath.
	UpsertCursor(ctx context.Context, c *model.SourceCursor) error

	// GetCursor returns the cursor for sourcePath, or ErrNotFound.
	GetCursor(ctx context.Context, sourcePath string) (*model.SourceCursor, error)
}

// MergeStore is the transactional core the ingestion engine drives
// (spec.md §4.1 "Transactional discipline", §4.3 step 3-4): upsert the
// session, insert any new messages, and advance the cursor, all inside
// one transaction. On any failure nothing is observable and the
// cursor is left at its prior value.
type MergeStore interface {
	MergeSession(ctx context.Context, sess *model.Session, msgs []model.Message, cursor *model.SourceCursor) (inserted int, err error)
}

// Stats summarizes store contents for the IPC "stats" command.
type Stats struct {
	SessionCount int64
	MessageCount int64
	LinkCount    int64
	SourceCount  int64
}

// Store composes every storage concern plus lifecycle and stats.
type Store interface {
	SessionStore
	LinkStore
	CursorStore
	MergeStore

	// Stats returns aggregate counts for the status/stats IPC commands.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying database handle.
	Close() error
}
