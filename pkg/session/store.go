package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// IDLength is the number of characters in a session id.
const IDLength = 20

// SetupSchema creates the session tables. It is idempotent and safe to
// call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    host TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);
`
		schemaParams = `
CREATE TABLE IF NOT EXISTS session_params (
    session_id TEXT NOT NULL,
    name TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (session_id, name)
);
`
		schemaIndex = `CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaSessions); err != nil {
		return fmt.Errorf("could not create sessions schema: %w", err)
	}
	if _, err = tx.Exec(schemaParams); err != nil {
		return fmt.Errorf("could not create params schema: %w", err)
	}
	if _, err = tx.Exec(schemaIndex); err != nil {
		return fmt.Errorf("could not create sessions index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Session is one stored session.
type Session struct {
	ID        string    `json:"id"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the session repository. It holds prepared statements for the
// lookups made on every request and is safe for concurrent use.
type Store struct {
	db           *sql.DB
	ttl          time.Duration
	now          func() time.Time
	stmtGet      *sql.Stmt
	stmtInsert   *sql.Stmt
	stmtTouch    *sql.Stmt
	stmtParams   *sql.Stmt
	stmtParam    *sql.Stmt
	stmtSetParam *sql.Stmt
	stmtDelParam *sql.Stmt
	stmtCount    *sql.Stmt
	logger       *slog.Logger
}

// NewStore prepares the statements of a Store whose sessions live for ttl
// after their last use.
func NewStore(db *sql.DB, ttl time.Duration) (*Store, error) {
	stmtGet, err := db.Prepare(`SELECT host, created_at, expires_at FROM sessions WHERE session_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsert, err := db.Prepare(`INSERT INTO sessions (session_id, host, created_at, expires_at) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	stmtTouch, err := db.Prepare(`UPDATE sessions SET expires_at = ? WHERE session_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtParams, err := db.Prepare(`SELECT name, value FROM session_params WHERE session_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtParam, err := db.Prepare(`SELECT value FROM session_params WHERE session_id = ? AND name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtSetParam, err := db.Prepare(`INSERT INTO session_params (session_id, name, value) VALUES (?, ?, ?) ON CONFLICT(session_id, name) DO UPDATE SET value = excluded.value;`)
	if err != nil {
		return nil, err
	}

	stmtDelParam, err := db.Prepare(`DELETE FROM session_params WHERE session_id = ? AND name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtCount, err := db.Prepare(`SELECT COUNT(*) FROM sessions WHERE expires_at > ?;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:           db,
		ttl:          ttl,
		now:          time.Now,
		stmtGet:      stmtGet,
		stmtInsert:   stmtInsert,
		stmtTouch:    stmtTouch,
		stmtParams:   stmtParams,
		stmtParam:    stmtParam,
		stmtSetParam: stmtSetParam,
		stmtDelParam: stmtDelParam,
		stmtCount:    stmtCount,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtInsert.Close()
	_ = s.stmtTouch.Close()
	_ = s.stmtParams.Close()
	_ = s.stmtParam.Close()
	_ = s.stmtSetParam.Close()
	_ = s.stmtDelParam.Close()
	_ = s.stmtCount.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewID returns a random session id of IDLength upper-case letters.
func NewID() (string, error) {
	buf := make([]byte, IDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf), nil
}

// Get returns a live session.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	var created, expires int64
	sess := Session{ID: id}
	err := s.stmtGet.QueryRowContext(ctx, id).Scan(&sess.Host, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0)
	sess.ExpiresAt = time.Unix(expires, 0)
	if !sess.ExpiresAt.After(s.now()) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Open resumes the session id for host, extending its lifetime, or starts a
// new one when id is empty, unknown, expired or bound to another host. The
// returned flag reports whether a new session was created.
func (s *Store) Open(ctx context.Context, id, host string) (Session, bool, error) {
	now := s.now()
	if id != "" {
		sess, err := s.Get(ctx, id)
		switch {
		case err == nil && sess.Host == host:
			sess.ExpiresAt = now.Add(s.ttl)
			if _, err = s.stmtTouch.ExecContext(ctx, sess.ExpiresAt.Unix(), id); err != nil {
				return Session{}, false, fmt.Errorf("failed to extend session: %w", err)
			}
			return sess, false, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return Session{}, false, err
		}
	}

	newID, err := NewID()
	if err != nil {
		return Session{}, false, err
	}
	sess := Session{ID: newID, Host: host, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	if _, err = s.stmtInsert.ExecContext(ctx, sess.ID, sess.Host, now.Unix(), sess.ExpiresAt.Unix()); err != nil {
		return Session{}, false, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.DebugContext(ctx, "Session created", "host", host)
	return sess, true, nil
}

// Params returns all parameters of a session.
func (s *Store) Params(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.stmtParams.QueryContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query params: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	params := map[string]string{}
	for rows.Next() {
		var name, value string
		if err = rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan param: %w", err)
		}
		params[name] = value
	}
	return params, rows.Err()
}

// Param returns one parameter of a session.
func (s *Store) Param(ctx context.Context, id, name string) (string, bool, error) {
	var value string
	err := s.stmtParam.QueryRowContext(ctx, id, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load param: %w", err)
	}
	return value, true, nil
}

func (s *Store) SetParam(ctx context.Context, id, name, value string) error {
	if _, err := s.stmtSetParam.ExecContext(ctx, id, name, value); err != nil {
		return fmt.Errorf("failed to set param %s: %w", name, err)
	}
	return nil
}

func (s *Store) RemoveParam(ctx context.Context, id, name string) error {
	if _, err := s.stmtDelParam.ExecContext(ctx, id, name); err != nil {
		return fmt.Errorf("failed to remove param %s: %w", name, err)
	}
	return nil
}

// Count returns the number of live sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.stmtCount.QueryRowContext(ctx, s.now().Unix()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Delete removes a session and its parameters.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM session_params WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session params: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// DeleteExpired removes every expired session with its parameters and
// returns how many sessions were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM session_params WHERE session_id IN (SELECT session_id FROM sessions WHERE expires_at <= ?)", now); err != nil {
		return 0, fmt.Errorf("failed to delete expired params: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.InfoContext(ctx, "Expired sessions removed", "count", n)
	return n, nil
}
