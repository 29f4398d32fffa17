package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const documentsTable = "smartlock.documents"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentStore implements port.DocumentStore on a single versioned table.
type DocumentStore struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewDocumentStore constructs a store backed by any executor that satisfies pgExecutor.
func NewDocumentStore(exec pgExecutor) *DocumentStore {
	return &DocumentStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (s *DocumentStore) WithClock(now func() time.Time) *DocumentStore {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureSchema creates the documents table when it does not exist yet.
func (s *DocumentStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS smartlock`,
		`CREATE TABLE IF NOT EXISTS smartlock.documents (
			path       TEXT PRIMARY KEY,
			parent     TEXT NOT NULL,
			data       JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_parent_idx ON smartlock.documents (parent, path)`,
	}
	for _, stmt := range statements {
		if _, err := s.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure documents schema: %w", err)
		}
	}
	return nil
}

// Get fetches a single document.
func (s *DocumentStore) Get(ctx context.Context, path string) (port.Document, error) {
	clean, err := repository.CleanPath(path)
	if err != nil {
		return port.Document{}, err
	}

	sql, args, err := s.builder.Select("path", "data", "version", "updated_at").
		From(documentsTable).
		Where(squirrel.Eq{"path": clean}).
		ToSql()
	if err != nil {
		return port.Document{}, fmt.Errorf("build select document sql: %w", err)
	}

	doc, err := scanDocument(s.exec.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return port.Document{}, repository.ErrNotFound
		}
		return port.Document{}, repository.WrapTimeout("select document", fmt.Errorf("select document: %w", err))
	}
	return doc, nil
}

// Put writes a document honouring expectedVersion.
func (s *DocumentStore) Put(ctx context.Context, path string, data json.RawMessage, expectedVersion int64) (int64, error) {
	clean, err := repository.CleanPath(path)
	if err != nil {
		return 0, err
	}
	if !json.Valid(data) {
		return 0, fmt.Errorf("put %s: invalid json payload", clean)
	}

	now := s.now().UTC()
	parent := repository.ParentOf(clean)

	var (
		sql  string
		args []any
	)

	switch {
	case expectedVersion > 0:
		sql, args, err = s.builder.Update(documentsTable).
			Set("data", []byte(data)).
			Set("version", squirrel.Expr("version + 1")).
			Set("updated_at", now).
			Where(squirrel.Eq{"path": clean, "version": expectedVersion}).
			Suffix("RETURNING version").
			ToSql()
	case expectedVersion == 0:
		sql, args, err = s.builder.Insert(documentsTable).
			Columns("path", "parent", "data", "version", "updated_at").
			Values(clean, parent, []byte(data), 1, now).
			Suffix("ON CONFLICT (path) DO NOTHING RETURNING version").
			ToSql()
	default:
		sql, args, err = s.builder.Insert(documentsTable).
			Columns("path", "parent", "data", "version", "updated_at").
			Values(clean, parent, []byte(data), 1, now).
			Suffix("ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, version = " + documentsTable + ".version + 1, updated_at = EXCLUDED.updated_at RETURNING version").
			ToSql()
	}
	if err != nil {
		return 0, fmt.Errorf("build put document sql: %w", err)
	}

	var version int64
	if err := s.exec.QueryRow(ctx, sql, args...).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrVersionConflict
		}
		return 0, repository.WrapTimeout("put document", fmt.Errorf("put document: %w", err))
	}
	return version, nil
}

// Delete removes a single document.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	clean, err := repository.CleanPath(path)
	if err != nil {
		return err
	}

	sql, args, err := s.builder.Delete(documentsTable).Where(squirrel.Eq{"path": clean}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete document sql: %w", err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return repository.WrapTimeout("delete document", fmt.Errorf("delete document: %w", err))
	}
	return nil
}

// DeleteTree removes prefix and all descendants.
func (s *DocumentStore) DeleteTree(ctx context.Context, prefix string) (int, error) {
	clean, err := repository.CleanPath(prefix)
	if err != nil {
		return 0, err
	}

	sql, args, err := s.builder.Delete(documentsTable).
		Where(squirrel.Or{
			squirrel.Eq{"path": clean},
			squirrel.Like{"path": escapeLike(clean) + "/%"},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete tree sql: %w", err)
	}

	tag, err := s.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, repository.WrapTimeout("delete tree", fmt.Errorf("delete tree: %w", err))
	}
	return int(tag.RowsAffected()), nil
}

// List returns direct children of parent ordered by path.
func (s *DocumentStore) List(ctx context.Context, parent string) ([]port.Document, error) {
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	sql, args, err := s.builder.Select("path", "data", "version", "updated_at").
		From(documentsTable).
		Where(squirrel.Eq{"parent": clean}).
		OrderBy("path").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list documents sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, repository.WrapTimeout("list documents", fmt.Errorf("list documents: %w", err))
	}
	defer rows.Close()

	docs := make([]port.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.WrapTimeout("iterate documents", fmt.Errorf("iterate documents: %w", err))
	}
	return docs, nil
}

// ListChildKeys returns the distinct first path segments stored below parent.
func (s *DocumentStore) ListChildKeys(ctx context.Context, parent string) ([]string, error) {
	clean, err := repository.CleanParent(parent)
	if err != nil {
		return nil, err
	}

	offset := 1
	pattern := "%"
	if clean != "" {
		offset = len(clean) + 2
		pattern = escapeLike(clean) + "/%"
	}

	sql, args, err := s.builder.Select().
		Column(squirrel.Expr("DISTINCT split_part(substr(path, ?), '/', 1) AS child", offset)).
		From(documentsTable).
		Where(squirrel.Like{"path": pattern}).
		OrderBy("child").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list child keys sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, repository.WrapTimeout("list child keys", fmt.Errorf("list child keys: %w", err))
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan child key: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child keys: %w", err)
	}
	return keys, nil
}

// Push stores data under a generated, time ordered child key.
func (s *DocumentStore) Push(ctx context.Context, parent string, data json.RawMessage) (string, error) {
	clean, err := repository.CleanPath(parent)
	if err != nil {
		return "", err
	}
	key := repository.NewPushKey()
	if _, err := s.Put(ctx, repository.JoinPath(clean, key), data, 0); err != nil {
		return "", err
	}
	return key, nil
}

func scanDocument(row pgx.Row) (port.Document, error) {
	var (
		doc  port.Document
		data []byte
	)
	if err := row.Scan(&doc.Path, &data, &doc.Version, &doc.UpdatedAt); err != nil {
		return port.Document{}, err
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

var _ port.DocumentStore = (*DocumentStore)(nil)
