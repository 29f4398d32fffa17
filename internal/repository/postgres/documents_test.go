package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *DocumentStore, time.Time) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := NewDocumentStore(mock).WithClock(func() time.Time { return now })
	return mock, store, now
}

func TestDocumentStore_Get(t *testing.T) {
	mock, store, now := newMockStore(t)

	rows := pgxmock.NewRows([]string{"path", "data", "version", "updated_at"}).
		AddRow("locks/a/temp_codes/123456", []byte(`{"code":"123456"}`), int64(3), now)

	mock.ExpectQuery(`SELECT path, data, version, updated_at FROM smartlock\.documents WHERE path = \$1`).
		WithArgs("locks/a/temp_codes/123456").
		WillReturnRows(rows)

	doc, err := store.Get(context.Background(), "/locks/a/temp_codes/123456")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc.Version != 3 || doc.Key() != "123456" {
		t.Fatalf("unexpected document %+v", doc)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	mock, store, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM smartlock\.documents`).
		WithArgs("locks_registry/missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.Get(context.Background(), "locks_registry/missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentStore_PutCreateOnlyConflict(t *testing.T) {
	mock, store, now := newMockStore(t)

	data := json.RawMessage(`{"code":"123456"}`)
	mock.ExpectQuery(`INSERT INTO smartlock\.documents .* ON CONFLICT \(path\) DO NOTHING RETURNING version`).
		WithArgs("locks/a/temp_codes/123456", "locks/a/temp_codes", []byte(data), 1, now).
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.Put(context.Background(), "locks/a/temp_codes/123456", data, 0); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_PutCompareAndSwap(t *testing.T) {
	mock, store, now := newMockStore(t)

	data := json.RawMessage(`{"usedCount":1}`)
	mock.ExpectQuery(`UPDATE smartlock\.documents SET data = \$1, version = version \+ 1, updated_at = \$2 WHERE path = \$3 AND version = \$4 RETURNING version`).
		WithArgs([]byte(data), now, "locks/a/temp_codes/123456", int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))

	version, err := store.Put(context.Background(), "locks/a/temp_codes/123456", data, 4)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if version != 5 {
		t.Fatalf("expected version 5, got %d", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_PutUnconditional(t *testing.T) {
	mock, store, now := newMockStore(t)

	data := json.RawMessage(`{"name":"Front door"}`)
	mock.ExpectQuery(`INSERT INTO smartlock\.documents .* ON CONFLICT \(path\) DO UPDATE SET`).
		WithArgs("locks_registry/a", "locks_registry", []byte(data), 1, now).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(2)))

	if _, err := store.Put(context.Background(), "locks_registry/a", data, port.AnyVersion); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
}

func TestDocumentStore_DeleteTreeEscapesPrefix(t *testing.T) {
	mock, store, _ := newMockStore(t)

	mock.ExpectExec(`DELETE FROM smartlock\.documents WHERE \(path = \$1 OR path LIKE \$2\)`).
		WithArgs("locks/lock_1", `locks/lock\_1/%`).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	removed, err := store.DeleteTree(context.Background(), "locks/lock_1")
	if err != nil {
		t.Fatalf("DeleteTree returned error: %v", err)
	}
	if removed != 7 {
		t.Fatalf("expected 7 removed rows, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDocumentStore_ListChildKeys(t *testing.T) {
	mock, store, _ := newMockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT split_part\(substr\(path, \$1\), '/', 1\) AS child FROM smartlock\.documents WHERE path LIKE \$2 ORDER BY child`).
		WithArgs(len("locks")+2, "locks/%").
		WillReturnRows(pgxmock.NewRows([]string{"child"}).AddRow("a").AddRow("b"))

	keys, err := store.ListChildKeys(context.Background(), "locks")
	if err != nil {
		t.Fatalf("ListChildKeys returned error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestDocumentStore_List(t *testing.T) {
	mock, store, now := newMockStore(t)

	rows := pgxmock.NewRows([]string{"path", "data", "version", "updated_at"}).
		AddRow("locks/a/activity_log/1", []byte(`{}`), int64(1), now).
		AddRow("locks/a/activity_log/2", []byte(`{}`), int64(1), now)

	mock.ExpectQuery(`SELECT path, data, version, updated_at FROM smartlock\.documents WHERE parent = \$1 ORDER BY path`).
		WithArgs("locks/a/activity_log").
		WillReturnRows(rows)

	docs, err := store.List(context.Background(), "locks/a/activity_log")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(docs) != 2 || docs[1].Key() != "2" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}
