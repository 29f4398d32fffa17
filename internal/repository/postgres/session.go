package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const sessionsTable = "smartlock.sessions"

var sessionColumns = []string{
	"id",
	"subject_id",
	"role",
	"lock_id",
	"token",
	"issued_at",
	"last_seen",
	"expires_at",
}

// SessionStore implements port.SessionStore for deployments without Redis.
// Expired rows are ignored on read and swept on every Save.
type SessionStore struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewSessionStore constructs a store backed by any executor that satisfies pgExecutor.
func NewSessionStore(exec pgExecutor) *SessionStore {
	return &SessionStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureSchema creates the sessions table when it does not exist yet.
func (s *SessionStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS smartlock`,
		`CREATE TABLE IF NOT EXISTS smartlock.sessions (
			id         TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			lock_id    TEXT,
			token      TEXT NOT NULL,
			issued_at  TIMESTAMPTZ NOT NULL,
			last_seen  TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_idx ON smartlock.sessions (expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sessions schema: %w", err)
		}
	}
	return nil
}

// Save upserts the session with an expiry ttl from now.
func (s *SessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	now := s.now().UTC()
	if _, err := s.exec.Exec(ctx, "DELETE FROM smartlock.sessions WHERE expires_at <= $1", now); err != nil {
		return repository.WrapTimeout("sweep sessions", fmt.Errorf("sweep expired sessions: %w", err))
	}

	stmt, args, err := s.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			id,
			session.SubjectID,
			string(session.Role),
			optionalString(session.LockID),
			session.Token,
			session.IssuedAt.UTC(),
			now,
			now.Add(ttl),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			role = EXCLUDED.role,
			lock_id = EXCLUDED.lock_id,
			token = EXCLUDED.token,
			last_seen = EXCLUDED.last_seen,
			expires_at = EXCLUDED.expires_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert session sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return repository.WrapTimeout("upsert session", fmt.Errorf("upsert session: %w", err))
	}
	return nil
}

// Touch returns a live session and extends its expiry by ttl.
func (s *SessionStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, repository.ErrNotFound
	}

	now := s.now().UTC()
	stmt, args, err := s.builder.Update(sessionsTable).
		Set("last_seen", now).
		Set("expires_at", now.Add(ttl)).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Gt{"expires_at": now}).
		Suffix("RETURNING " + strings.Join(sessionColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build touch session sql: %w", err)
	}

	session, err := scanSession(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, repository.WrapTimeout("touch session", fmt.Errorf("touch session: %w", err))
	}
	return session, nil
}

// Delete drops the session. Unknown ids are ignored.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil
	}
	if _, err := s.exec.Exec(ctx, "DELETE FROM smartlock.sessions WHERE id = $1", id); err != nil {
		return repository.WrapTimeout("delete session", fmt.Errorf("delete session: %w", err))
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session domain.Session
		role    string
		lockID  sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.SubjectID,
		&role,
		&lockID,
		&session.Token,
		&session.IssuedAt,
		&session.LastSeen,
		&session.ExpiresAt,
	); err != nil {
		return nil, err
	}
	session.Role = domain.Role(role)
	if lockID.Valid {
		session.LockID = lockID.String
	}
	session.IssuedAt = session.IssuedAt.UTC()
	session.LastSeen = session.LastSeen.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	return &session, nil
}

func optionalString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

var _ port.SessionStore = (*SessionStore)(nil)
