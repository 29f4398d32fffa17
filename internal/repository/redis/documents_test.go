package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestDocumentStore_CreateOnlyAndCompareAndSwap(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewDocumentStore(client, "test")
	ctx := context.Background()

	v1, err := store.Put(ctx, "locks/a/temp_codes/123456", json.RawMessage(`{"usedCount":0}`), 0)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1, got %d", v1)
	}

	if _, err := store.Put(ctx, "locks/a/temp_codes/123456", json.RawMessage(`{}`), 0); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	v2, err := store.Put(ctx, "locks/a/temp_codes/123456", json.RawMessage(`{"usedCount":1}`), v1)
	if err != nil {
		t.Fatalf("CAS Put returned error: %v", err)
	}

	if _, err := store.Put(ctx, "locks/a/temp_codes/123456", json.RawMessage(`{"usedCount":2}`), v1); !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	doc, err := store.Get(ctx, "locks/a/temp_codes/123456")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc.Version != v2 || string(doc.Data) != `{"usedCount":1}` {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestDocumentStore_ListAndDeleteTree(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewDocumentStore(client, "test")
	ctx := context.Background()

	for _, path := range []string{
		"locks_registry/a",
		"locks/a/temp_codes/111111",
		"locks/a/temp_codes/222222",
		"locks/a/activity_log/x",
		"locks/b/activity_log/y",
	} {
		if _, err := store.Put(ctx, path, json.RawMessage(`{}`), port.AnyVersion); err != nil {
			t.Fatalf("Put %s: %v", path, err)
		}
	}

	docs, err := store.List(ctx, "locks/a/temp_codes")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(docs))
	}

	lockIDs, err := store.ListChildKeys(ctx, "locks")
	if err != nil {
		t.Fatalf("ListChildKeys returned error: %v", err)
	}
	if len(lockIDs) != 2 || lockIDs[0] != "a" || lockIDs[1] != "b" {
		t.Fatalf("unexpected lock ids %v", lockIDs)
	}

	removed, err := store.DeleteTree(ctx, "locks/a")
	if err != nil {
		t.Fatalf("DeleteTree returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed documents, got %d", removed)
	}

	lockIDs, err = store.ListChildKeys(ctx, "locks")
	if err != nil {
		t.Fatalf("ListChildKeys returned error: %v", err)
	}
	if len(lockIDs) != 1 || lockIDs[0] != "b" {
		t.Fatalf("expected only lock b after DeleteTree, got %v", lockIDs)
	}

	if _, err := store.Get(ctx, "locks_registry/a"); err != nil {
		t.Fatalf("registry entry should survive, got %v", err)
	}
}

func TestDocumentStore_DeleteUnindexesLeaf(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewDocumentStore(client, "test")
	ctx := context.Background()

	if _, err := store.Put(ctx, "audit_logs/1", json.RawMessage(`{}`), port.AnyVersion); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := store.Delete(ctx, "audit_logs/1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "audit_logs/1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	keys, err := store.ListChildKeys(ctx, "audit_logs")
	if err != nil {
		t.Fatalf("ListChildKeys returned error: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty index, got %v", keys)
	}
}

func TestDocumentStore_DeleteRacingCreateKeepsIndex(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewDocumentStore(client, "test")
	ctx := context.Background()
	const path = "locks/a/temp_codes/123456"

	for i := 0; i < 50; i++ {
		if _, err := store.Put(ctx, path, json.RawMessage(`{"usedCount":1}`), port.AnyVersion); err != nil {
			t.Fatalf("seed Put returned error: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := store.Delete(ctx, path); err != nil && !errors.Is(err, repository.ErrTooManyConflicts) {
				t.Errorf("Delete returned error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.Put(ctx, path, json.RawMessage(`{"usedCount":0}`), port.AnyVersion); err != nil {
				t.Errorf("Put returned error: %v", err)
			}
		}()
		wg.Wait()

		_, getErr := store.Get(ctx, path)
		docs, err := store.List(ctx, "locks/a/temp_codes")
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if getErr == nil && len(docs) != 1 {
			t.Fatalf("iteration %d: stored code missing from its parent index", i)
		}
	}
}
