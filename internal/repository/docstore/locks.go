package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

// LockRepository stores lock registry entries.
type LockRepository struct {
	base
}

// Get returns a registry entry or repository.ErrNotFound.
func (r *LockRepository) Get(ctx context.Context, lockID string) (*domain.Lock, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return nil, err
	}

	var lock domain.Lock
	if _, err := r.get(ctx, repository.JoinPath(registryRoot, id), &lock); err != nil {
		return nil, err
	}
	if lock.ID == "" {
		lock.ID = id
	}
	return &lock, nil
}

// Create inserts a new entry and fails with repository.ErrAlreadyExists on duplicates.
func (r *LockRepository) Create(ctx context.Context, lock domain.Lock) error {
	id, err := segment("lock id", lock.ID)
	if err != nil {
		return err
	}
	if _, err := r.put(ctx, repository.JoinPath(registryRoot, id), lock, 0); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("create lock: %w", err)
	}
	return nil
}

// Save overwrites the entry.
func (r *LockRepository) Save(ctx context.Context, lock domain.Lock) error {
	id, err := segment("lock id", lock.ID)
	if err != nil {
		return err
	}
	if _, err := r.put(ctx, repository.JoinPath(registryRoot, id), lock, port.AnyVersion); err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	return nil
}

// Delete removes the registry entry only.
func (r *LockRepository) Delete(ctx context.Context, lockID string) error {
	id, err := segment("lock id", lockID)
	if err != nil {
		return err
	}
	return r.delete(ctx, repository.JoinPath(registryRoot, id))
}

// DeleteData removes locks/{lockId} and everything below.
func (r *LockRepository) DeleteData(ctx context.Context, lockID string) (int, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return 0, err
	}
	return r.deleteTree(ctx, repository.JoinPath(locksRoot, id))
}

// List returns every registry entry ordered by id.
func (r *LockRepository) List(ctx context.Context) ([]domain.Lock, error) {
	docs, err := r.list(ctx, registryRoot)
	if err != nil {
		return nil, err
	}

	locks := make([]domain.Lock, 0, len(docs))
	for _, doc := range docs {
		var lock domain.Lock
		if err := decode(doc, &lock); err != nil {
			return nil, err
		}
		if lock.ID == "" {
			lock.ID = doc.Key()
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

// KnownLockIDs returns registry ids merged with ids that only have data subtrees.
func (r *LockRepository) KnownLockIDs(ctx context.Context) ([]string, error) {
	registered, err := r.childKeys(ctx, registryRoot)
	if err != nil {
		return nil, err
	}
	withData, err := r.childKeys(ctx, locksRoot)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(registered)+len(withData))
	for _, id := range append(registered, withData...) {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ port.LockRepository = (*LockRepository)(nil)
