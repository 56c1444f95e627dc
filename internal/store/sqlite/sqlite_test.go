package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/lore/internal/model"
	"github.com/nstogner/lore/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	sess := &model.Session{
		ID:               "sess-1",
		Tool:             "claude-code",
		StartedAt:        started,
		WorkingDirectory: "/repo",
		Model:            "claude-sonnet",
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Tool != "claude-code" || got.WorkingDirectory != "/repo" {
		t.Errorf("got = %+v", got)
	}

	// Update: ended_at advances, started_at/tool/working_directory are immutable.
	ended := started.Add(10 * time.Minute)
	sess.EndedAt = &ended
	sess.MessageCount = 3
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession update: %v", err)
	}
	got2, _ := s.GetSession(ctx, "sess-1")
	if got2.EndedAt == nil || !got2.EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", got2.EndedAt, ended)
	}
	if got2.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", got2.MessageCount)
	}
}

func TestSessionGetPrefixAmbiguity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertSession(ctx, &model.Session{ID: "abc123", Tool: "aider", StartedAt: time.Now()})
	s.UpsertSession(ctx, &model.Session{ID: "abc999", Tool: "aider", StartedAt: time.Now()})

	if _, err := s.GetSession(ctx, "abc"); err == nil {
		t.Fatal("expected ambiguous prefix error, got nil")
	}

	got, err := s.GetSession(ctx, "abc123")
	if err != nil {
		t.Fatalf("exact id lookup: %v", err)
	}
	if got.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", got.ID)
	}

	if _, err := s.GetSession(ctx, "zzz"); err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertMessagesMissingIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertSession(ctx, &model.Session{ID: "sess-1", Tool: "claude-code", StartedAt: time.Now()})

	msgs := []model.Message{
		{ID: uuid.New().String(), Index: 0, Role: model.RoleHuman, Content: "add rate limiting", Timestamp: time.Now()},
		{ID: uuid.New().String(), Index: 1, Role: model.RoleAssistant, Content: "calling str_replace", Timestamp: time.Now()},
		{ID: uuid.New().String(), Index: 2, Role: model.RoleToolResult, Content: "ok", Timestamp: time.Now()},
	}

	n1, err := s.InsertMessagesMissing(ctx, "sess-1", msgs)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if n1 != 3 {
		t.Errorf("first insert count = %d, want 3", n1)
	}

	n2, err := s.InsertMessagesMissing(ctx, "sess-1", msgs)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n2 != 0 {
		t.Errorf("second insert count = %d, want 0 (dedup)", n2)
	}

	got, err := s.GetMessages(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, m := range got {
		if m.Index != i {
			t.Errorf("message %d has index %d, want contiguous", i, m.Index)
		}
	}
}

func TestLinkUniquenessAndPrecedence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertSession(ctx, &model.Session{ID: "sess-1", Tool: "claude-code", StartedAt: time.Now()})

	manual := &model.SessionLink{
		ID:         uuid.New().String(),
		SessionID:  "sess-1",
		CommitSHA:  "deadbeef",
		RepoPath:   "/repo",
		CreatedAt:  time.Now(),
		Origin:     model.LinkOriginManual,
		Confidence: 1.0,
	}
	if err := s.Link(ctx, manual); err != nil {
		t.Fatalf("manual link: %v", err)
	}

	auto := &model.SessionLink{
		ID:         uuid.New().String(),
		SessionID:  "sess-1",
		CommitSHA:  "deadbeef",
		RepoPath:   "/repo",
		CreatedAt:  time.Now(),
		Origin:     model.LinkOriginAutoForward,
		Confidence: 0.7,
	}
	if err := s.Link(ctx, auto); err != nil {
		t.Fatalf("auto link: %v", err)
	}

	links, err := s.GetLinksForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetLinksForSession: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("len(links) = %d, want 1", len(links))
	}
	if links[0].Origin != model.LinkOriginManual || links[0].Confidence != 1.0 {
		t.Errorf("links[0] = %+v, want manual/1.0 preserved", links[0])
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetCursor(ctx, "/tmp/missing.jsonl"); err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	c := &model.SourceCursor{
		SourcePath:        "/tmp/session.jsonl",
		Tool:              "claude-code",
		LastSizeBytes:     1024,
		LastModified:      time.Now().Truncate(time.Second),
		ContentHashPrefix: "abcd1234",
		LastImportedAt:    time.Now().Truncate(time.Second),
	}
	if err := s.UpsertCursor(ctx, c); err != nil {
		t.Fatalf("UpsertCursor: %v", err)
	}

	got, err := s.GetCursor(ctx, "/tmp/session.jsonl")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if got.LastSizeBytes != 1024 || got.ContentHashPrefix != "abcd1234" {
		t.Errorf("got = %+v", got)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertSession(ctx, &model.Session{ID: "sess-1", Tool: "claude-code", StartedAt: time.Now()})
	s.InsertMessagesMissing(ctx, "sess-1", []model.Message{
		{ID: uuid.New().String(), Index: 0, Role: model.RoleHuman, Timestamp: time.Now()},
	})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.SessionCount != 1 || st.MessageCount != 1 {
		t.Errorf("Stats = %+v", st)
	}
}
