package session

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a new on-disk SQLite database in a temp dir and a
// Store with a controllable clock.
func setupTestStore(t *testing.T) (*Store, *time.Time) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	if err := SetupSchema(db); err != nil {
		t.Fatalf("SetupSchema should be idempotent: %v", err)
	}

	s, err := NewStore(db, time.Hour)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestNewID(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}
	if len(id) != IDLength || strings.Trim(id, idAlphabet) != "" {
		t.Errorf("unexpected id %q", id)
	}
}

func TestStore_Open(t *testing.T) {
	s, now := setupTestStore(t)
	ctx := context.Background()

	sess, created, err := s.Open(ctx, "", "example.com")
	if err != nil || !created {
		t.Fatalf("Open should create a session: created=%v err=%v", created, err)
	}

	*now = now.Add(30 * time.Minute)
	again, created, err := s.Open(ctx, sess.ID, "example.com")
	if err != nil || created {
		t.Fatalf("Open should resume the session: created=%v err=%v", created, err)
	}
	if again.ID != sess.ID || !again.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("resumed session should be extended: %+v", again)
	}

	other, created, err := s.Open(ctx, sess.ID, "other.org")
	if err != nil || !created || other.ID == sess.ID {
		t.Errorf("a foreign host must get a new session: %+v created=%v err=%v", other, created, err)
	}

	fresh, created, err := s.Open(ctx, "NOSUCHSESSIONID12345", "example.com")
	if err != nil || !created || fresh.ID == "NOSUCHSESSIONID12345" {
		t.Errorf("an unknown id must not be adopted: %+v created=%v err=%v", fresh, created, err)
	}
}

func TestStore_Expiry(t *testing.T) {
	s, now := setupTestStore(t)
	ctx := context.Background()

	old, _, err := s.Open(ctx, "", "h")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SetParam(ctx, old.ID, "a", "1"); err != nil {
		t.Fatalf("SetParam failed: %v", err)
	}

	*now = now.Add(50 * time.Minute)
	live, _, err := s.Open(ctx, "", "h")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	*now = now.Add(20 * time.Minute)
	if _, err := s.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the old session to be expired, got %v", err)
	}
	if n, err := s.Count(ctx); err != nil || n != 1 {
		t.Errorf("expected one live session, got %d (%v)", n, err)
	}

	removed, err := s.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed session, got %d", removed)
	}
	if params, _ := s.Params(ctx, old.ID); len(params) != 0 {
		t.Errorf("params of expired sessions should be removed, got %v", params)
	}
	if _, err := s.Get(ctx, live.ID); err != nil {
		t.Errorf("live session should survive: %v", err)
	}
}

func TestStore_Params(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	sess, _, err := s.Open(ctx, "", "h")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := s.SetParam(ctx, sess.ID, "count", "1"); err != nil {
		t.Fatalf("SetParam failed: %v", err)
	}
	if err := s.SetParam(ctx, sess.ID, "count", "2"); err != nil {
		t.Fatalf("SetParam overwrite failed: %v", err)
	}
	if err := s.SetParam(ctx, sess.ID, "name", "ana"); err != nil {
		t.Fatalf("SetParam failed: %v", err)
	}

	v, ok, err := s.Param(ctx, sess.ID, "count")
	if err != nil || !ok || v != "2" {
		t.Errorf("expected count=2, got %q ok=%v err=%v", v, ok, err)
	}
	params, err := s.Params(ctx, sess.ID)
	if err != nil || len(params) != 2 || params["name"] != "ana" {
		t.Errorf("unexpected params %v (%v)", params, err)
	}

	if err := s.RemoveParam(ctx, sess.ID, "count"); err != nil {
		t.Fatalf("RemoveParam failed: %v", err)
	}
	if _, ok, _ := s.Param(ctx, sess.ID, "count"); ok {
		t.Error("count should be removed")
	}
}

func TestStore_Delete(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	sess, _, _ := s.Open(ctx, "", "h")
	_ = s.SetParam(ctx, sess.ID, "a", "b")

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting twice should report ErrNotFound, got %v", err)
	}
}

func TestStore_Concurrency(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	sess, _, err := s.Open(ctx, "", "h")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			if err := s.SetParam(ctx, sess.ID, name, name); err != nil {
				t.Errorf("SetParam %s failed: %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	params, err := s.Params(ctx, sess.ID)
	if err != nil || len(params) != 8 {
		t.Errorf("expected 8 params, got %v (%v)", params, err)
	}
}
