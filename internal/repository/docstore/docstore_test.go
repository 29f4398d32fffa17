package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository/memory"
)

func TestTempCodeRepositoryCreateRejectsDuplicate(t *testing.T) {
	repos := NewRepositories(memory.NewDocumentStore(), time.Second)
	ctx := context.Background()

	code := domain.TempCode{Code: "123456", LockID: "lock-1", MaxUses: 1, Status: domain.TempCodeActive}
	if err := repos.TempCodes.Create(ctx, code); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := repos.TempCodes.Create(ctx, code); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	other := code
	other.LockID = "lock-2"
	if err := repos.TempCodes.Create(ctx, other); err != nil {
		t.Fatalf("same code on another lock should be accepted, got %v", err)
	}
}

func TestTempCodeRepositoryUpdateIsSerialisable(t *testing.T) {
	repos := NewRepositories(memory.NewDocumentStore(), time.Second)
	repos.TempCodes.maxAttempts = 1000
	ctx := context.Background()

	code := domain.TempCode{Code: "654321", LockID: "lock-1", MaxUses: 100, Status: domain.TempCodeActive}
	if err := repos.TempCodes.Create(ctx, code); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.TempCodes.Update(ctx, "lock-1", "654321", func(tc *domain.TempCode) (bool, error) {
				tc.UsedCount++
				return true, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
	}

	stored, err := repos.TempCodes.Get(ctx, "lock-1", "654321")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.UsedCount != workers {
		t.Fatalf("expected %d uses, got %d", workers, stored.UsedCount)
	}
}

func TestTempCodeRepositoryUpdateMissing(t *testing.T) {
	repos := NewRepositories(memory.NewDocumentStore(), time.Second)

	_, err := repos.TempCodes.Update(context.Background(), "lock-1", "000000", func(tc *domain.TempCode) (bool, error) {
		return true, nil
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLockRepositoryKnownLockIDsMergesSubtrees(t *testing.T) {
	store := memory.NewDocumentStore()
	repos := NewRepositories(store, time.Second)
	ctx := context.Background()

	if err := repos.Locks.Create(ctx, domain.Lock{ID: "registered", Name: "Front"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := repos.Activity.Append(ctx, "orphan", domain.ActivityEntry{Name: "x", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	ids, err := repos.Locks.KnownLockIDs(ctx)
	if err != nil {
		t.Fatalf("KnownLockIDs returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "orphan" || ids[1] != "registered" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestActivityLogListNewestFirst(t *testing.T) {
	repos := NewRepositories(memory.NewDocumentStore(), time.Second)
	ctx := context.Background()

	base := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := domain.ActivityEntry{Name: "entry", Type: "TEST", Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if _, err := repos.Activity.Append(ctx, "lock-1", entry); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
	}

	entries, err := repos.Activity.List(ctx, "lock-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 3 || !entries[0].Timestamp.Equal(base.Add(2*time.Hour)) || entries[0].ID == "" {
		t.Fatalf("unexpected ordering %+v", entries)
	}
}

func TestSegmentRejectsTraversal(t *testing.T) {
	repos := NewRepositories(memory.NewDocumentStore(), time.Second)
	if _, err := repos.Locks.Get(context.Background(), "../audit_logs"); !errors.Is(err, repository.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

type slowStore struct {
	port.DocumentStore
}

func (s slowStore) Get(ctx context.Context, path string) (port.Document, error) {
	<-ctx.Done()
	return port.Document{}, ctx.Err()
}

func (s slowStore) Put(ctx context.Context, path string, data json.RawMessage, expectedVersion int64) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestOperationTimeoutSurfacesAsStoreTimeout(t *testing.T) {
	repos := NewRepositories(slowStore{memory.NewDocumentStore()}, 10*time.Millisecond)

	_, err := repos.Locks.Get(context.Background(), "lock-1")
	if !errors.Is(err, repository.ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
}
