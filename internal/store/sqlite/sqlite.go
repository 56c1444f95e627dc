// Package sqlite implements the store.Store contract on top of SQLite,
// grounded on the teacher's pkg/store/sqlite package: a single *sql.DB
// opened in WAL mode, an inline CREATE TABLE IF NOT EXISTS migration,
// and one method per storage operation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/lore/internal/model"
	"github.com/nstogner/lore/internal/store"
)

// Store implements store.Store using SQLite as the single embedded
// database file described in spec.md §3/§4.1.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer at a time is sufficient per spec.md §4.1; readers
	// and writers share this one connection, so operations run one at
	// a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		working_directory TEXT NOT NULL DEFAULT '',
		branch_history TEXT NOT NULL DEFAULT '[]',
		model TEXT NOT NULL DEFAULT '',
		source_path TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		message_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_working_directory ON sessions(working_directory);
	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
		UNIQUE (session_id, message_index)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_index ON messages(session_id, message_index);

	CREATE TABLE IF NOT EXISTS session_links (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		repo_path TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		origin TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		UNIQUE (session_id, commit_sha)
	);
	CREATE INDEX IF NOT EXISTS idx_links_session ON session_links(session_id);
	CREATE INDEX IF NOT EXISTS idx_links_commit ON session_links(commit_sha);

	CREATE TABLE IF NOT EXISTS source_cursors (
		source_path TEXT PRIMARY KEY,
		tool TEXT NOT NULL DEFAULT '',
		last_size_bytes INTEGER NOT NULL DEFAULT 0,
		last_modified DATETIME,
		content_hash_prefix TEXT NOT NULL DEFAULT '',
		last_imported_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS daemon_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- SessionStore ---

func (s *Store) UpsertSession(ctx context.Context, sess *model.Session) error {
	branchJSON, err := json.Marshal(sess.BranchHistory)
	if err != nil {
		return fmt.Errorf("marshal branch history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, tool, started_at, ended_at, working_directory, branch_history, model, source_path, metadata, message_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ended_at = CASE
				WHEN excluded.ended_at IS NULL THEN sessions.ended_at
				WHEN sessions.ended_at IS NULL THEN excluded.ended_at
				WHEN excluded.ended_at > sessions.ended_at THEN excluded.ended_at
				ELSE sessions.ended_at
			END,
			branch_history = excluded.branch_history,
			model = excluded.model,
			metadata = excluded.metadata,
			message_count = excluded.message_count`,
		sess.ID, sess.Tool, sess.StartedAt, nullableTime(sess.EndedAt),
		sess.WorkingDirectory, string(branchJSON), sess.Model, sess.SourcePath,
		sess.Metadata, sess.MessageCount,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) InsertMessagesMissing(ctx context.Context, sessionID string, msgs []model.Message) (int, error) {
	inserted := 0
	for _, m := range msgs {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages (id, session_id, message_index, timestamp, role, content, parent_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, sessionID, m.Index, m.Timestamp, string(m.Role), m.Content, m.ParentID,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert message %d: %w", m.Index, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func (s *Store) GetSession(ctx context.Context, idOrPrefix string) (*model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool, started_at, ended_at, working_directory, branch_history, model, source_path, metadata, message_count
		 FROM sessions WHERE id = ? OR id LIKE ? || '%'`, idOrPrefix, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	defer rows.Close()

	var matches []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sess)
		if sess.ID == idOrPrefix {
			// Exact id match always wins even if other ids share the prefix.
			return &sess, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, store.ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &store.ErrAmbiguousID{Prefix: idOrPrefix, Candidates: ids}
	}
}

func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.Session, error) {
	q := `SELECT id, tool, started_at, ended_at, working_directory, branch_history, model, source_path, metadata, message_count FROM sessions WHERE 1=1`
	var args []any
	if filter.WorkingDirectory != "" {
		q += " AND working_directory = ?"
		args = append(args, filter.WorkingDirectory)
	}
	if filter.Tool != "" {
		q += " AND tool = ?"
		args = append(args, filter.Tool)
	}
	if filter.Since != nil {
		q += " AND started_at >= ?"
		args = append(args, time.Unix(*filter.Since, 0).UTC())
	}
	if filter.Until != nil {
		q += " AND started_at <= ?"
		args = append(args, time.Unix(*filter.Until, 0).UTC())
	}
	q += " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, message_index, timestamp, role, content, parent_id
		 FROM messages WHERE session_id = ? ORDER BY message_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Index, &m.Timestamp, &role, &m.Content, &m.ParentID); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) FindSessionsActiveDuring(ctx context.Context, tStart, tEnd int64, repoPath string) ([]model.Session, error) {
	start := time.Unix(tStart, 0).UTC()
	end := time.Unix(tEnd, 0).UTC()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool, started_at, ended_at, working_directory, branch_history, model, source_path, metadata, message_count
		 FROM sessions
		 WHERE working_directory = ?
		   AND started_at <= ?
		   AND (ended_at IS NULL OR ended_at >= ?)`,
		repoPath, end, start)
	if err != nil {
		return nil, fmt.Errorf("find sessions active during: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) FindSessionsTouchingFiles(ctx context.Context, paths []string) ([]model.Session, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	var out []model.Session
	for _, p := range paths {
		rows, err := s.db.QueryContext(ctx,
			`SELECT DISTINCT s.id, s.tool, s.started_at, s.ended_at, s.working_directory, s.branch_history, s.model, s.source_path, s.metadata, s.message_count
			 FROM sessions s JOIN messages m ON m.session_id = s.id
			 WHERE m.content LIKE '%' || ? || '%'`, p)
		if err != nil {
			return nil, fmt.Errorf("find sessions touching files: %w", err)
		}
		sessions, err := scanSessions(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if !seen[sess.ID] {
				seen[sess.ID] = true
				out = append(out, sess)
			}
		}
	}
	return out, nil
}

// --- LinkStore ---

func (s *Store) Link(ctx context.Context, link *model.SessionLink) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_links (id, session_id, commit_sha, repo_path, created_at, origin, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, commit_sha) DO NOTHING`,
		link.ID, link.SessionID, link.CommitSHA, link.RepoPath, link.CreatedAt, string(link.Origin), link.Confidence,
	)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

func (s *Store) GetLinksForSession(ctx context.Context, sessionID string) ([]model.SessionLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, commit_sha, repo_path, created_at, origin, confidence FROM session_links WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get links for session: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (s *Store) GetLinksForCommit(ctx context.Context, repoPath, sha string) ([]model.SessionLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, commit_sha, repo_path, created_at, origin, confidence FROM session_links WHERE repo_path = ? AND commit_sha = ?`, repoPath, sha)
	if err != nil {
		return nil, fmt.Errorf("get links for commit: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (s *Store) Unlink(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_links WHERE id = ?`, linkID)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	return nil
}

// --- CursorStore ---

func (s *Store) UpsertCursor(ctx context.Context, c *model.SourceCursor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_cursors (source_path, tool, last_size_bytes, last_modified, content_hash_prefix, last_imported_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_path) DO UPDATE SET
			tool = excluded.tool,
			last_size_bytes = excluded.last_size_bytes,
			last_modified = excluded.last_modified,
			content_hash_prefix = excluded.content_hash_prefix,
			last_imported_at = excluded.last_imported_at`,
		c.SourcePath, c.Tool, c.LastSizeBytes, c.LastModified, c.ContentHashPrefix, c.LastImportedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

func (s *Store) GetCursor(ctx context.Context, sourcePath string) (*model.SourceCursor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_path, tool, last_size_bytes, last_modified, content_hash_prefix, last_imported_at
		 FROM source_cursors WHERE source_path = ?`, sourcePath)
	var c model.SourceCursor
	var lastModified, lastImportedAt sql.NullTime
	if err := row.Scan(&c.SourcePath, &c.Tool, &c.LastSizeBytes, &lastModified, &c.ContentHashPrefix, &lastImportedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	c.LastModified = lastModified.Time
	c.LastImportedAt = lastImportedAt.Time
	return &c, nil
}

// MergeSession is the transactional core described in spec.md §4.1 and
// driven by the ingestion engine on every parsed source: it upserts
// the session, inserts any messages missing by (session_id, index),
// and advances the cursor, all inside one transaction. Grounded on the
// ccrider importer's Begin/defer-Rollback/Commit shape.
func (s *Store) MergeSession(ctx context.Context, sess *model.Session, msgs []model.Message, cursor *model.SourceCursor) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback()

	branchJSON, err := json.Marshal(sess.BranchHistory)
	if err != nil {
		return 0, fmt.Errorf("marshal branch history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, tool, started_at, ended_at, working_directory, branch_history, model, source_path, metadata, message_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ended_at = CASE
				WHEN excluded.ended_at IS NULL THEN sessions.ended_at
				WHEN sessions.ended_at IS NULL THEN excluded.ended_at
				WHEN excluded.ended_at > sessions.ended_at THEN excluded.ended_at
				ELSE sessions.ended_at
			END,
			branch_history = excluded.branch_history,
			model = excluded.model,
			metadata = excluded.metadata,
			message_count = excluded.message_count`,
		sess.ID, sess.Tool, sess.StartedAt, nullableTime(sess.EndedAt),
		sess.WorkingDirectory, string(branchJSON), sess.Model, sess.SourcePath,
		sess.Metadata, sess.MessageCount,
	); err != nil {
		return 0, fmt.Errorf("upsert session: %w", err)
	}

	inserted := 0
	for _, m := range msgs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages (id, session_id, message_index, timestamp, role, content, parent_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, sess.ID, m.Index, m.Timestamp, string(m.Role), m.Content, m.ParentID,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert message %d: %w", m.Index, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			inserted++
		}
	}

	if cursor != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_cursors (source_path, tool, last_size_bytes, last_modified, content_hash_prefix, last_imported_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source_path) DO UPDATE SET
				tool = excluded.tool,
				last_size_bytes = excluded.last_size_bytes,
				last_modified = excluded.last_modified,
				content_hash_prefix = excluded.content_hash_prefix,
				last_imported_at = excluded.last_imported_at`,
			cursor.SourcePath, cursor.Tool, cursor.LastSizeBytes, cursor.LastModified, cursor.ContentHashPrefix, cursor.LastImportedAt,
		); err != nil {
			return inserted, fmt.Errorf("upsert cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit merge: %w", err)
	}
	return inserted, nil
}

// --- Stats ---

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.SessionCount); err != nil {
		return st, fmt.Errorf("stats sessions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.MessageCount); err != nil {
		return st, fmt.Errorf("stats messages: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_links`).Scan(&st.LinkCount); err != nil {
		return st, fmt.Errorf("stats links: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_cursors`).Scan(&st.SourceCount); err != nil {
		return st, fmt.Errorf("stats sources: %w", err)
	}
	return st, nil
}

// --- helpers ---

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSession(rows rowScanner) (model.Session, error) {
	var sess model.Session
	var endedAt sql.NullTime
	var branchJSON string
	if err := rows.Scan(&sess.ID, &sess.Tool, &sess.StartedAt, &endedAt, &sess.WorkingDirectory,
		&branchJSON, &sess.Model, &sess.SourcePath, &sess.Metadata, &sess.MessageCount); err != nil {
		return sess, fmt.Errorf("scan session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if branchJSON != "" {
		if err := json.Unmarshal([]byte(branchJSON), &sess.BranchHistory); err != nil {
			return sess, fmt.Errorf("unmarshal branch history: %w", err)
		}
	}
	return sess, nil
}

func scanSessions(rows *sql.Rows) ([]model.Session, error) {
	var out []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanLinks(rows *sql.Rows) ([]model.SessionLink, error) {
	var out []model.SessionLink
	for rows.Next() {
		var l model.SessionLink
		var origin string
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CommitSHA, &l.RepoPath, &l.CreatedAt, &origin, &l.Confidence); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.Origin = model.LinkOrigin(origin)
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// NormalizeForPrefix trims trailing slashes from path. It does not
// itself compare paths; component-wise matching is left to the caller.
func NormalizeForPrefix(path string) string {
	return strings.TrimRight(path, "/")
}
