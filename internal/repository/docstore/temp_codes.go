package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const defaultUpdateAttempts = 8

// TempCodeRepository stores codes under locks/{lockId}/temp_codes/{code}.
type TempCodeRepository struct {
	base
	maxAttempts int
}

func codePath(lockID, code string) (string, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return "", err
	}
	c, err := segment("code", code)
	if err != nil {
		return "", err
	}
	return repository.JoinPath(locksRoot, id, tempCodesNode, c), nil
}

// Create stores code only when the lock has no code with the same value.
func (r *TempCodeRepository) Create(ctx context.Context, code domain.TempCode) error {
	path, err := codePath(code.LockID, code.Code)
	if err != nil {
		return err
	}
	if _, err := r.put(ctx, path, code, 0); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("create temp code: %w", err)
	}
	return nil
}

// Get reads a code.
func (r *TempCodeRepository) Get(ctx context.Context, lockID, code string) (*domain.TempCode, error) {
	path, err := codePath(lockID, code)
	if err != nil {
		return nil, err
	}
	var tc domain.TempCode
	if _, err := r.get(ctx, path, &tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// Update reads, mutates and conditionally writes the code, retrying when another
// writer got in between. The mutate callback must be safe to call repeatedly.
func (r *TempCodeRepository) Update(ctx context.Context, lockID, code string, mutate func(*domain.TempCode) (bool, error)) (*domain.TempCode, error) {
	path, err := codePath(lockID, code)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		var tc domain.TempCode
		version, err := r.get(ctx, path, &tc)
		if err != nil {
			return nil, err
		}

		changed, err := mutate(&tc)
		if err != nil {
			return &tc, err
		}
		if !changed {
			return &tc, nil
		}

		if _, err := r.put(ctx, path, tc, version); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return nil, fmt.Errorf("update temp code: %w", err)
		}
		return &tc, nil
	}

	return nil, repository.ErrTooManyConflicts
}

// List returns every code of the lock.
func (r *TempCodeRepository) List(ctx context.Context, lockID string) ([]domain.TempCode, error) {
	id, err := segment("lock id", lockID)
	if err != nil {
		return nil, err
	}

	docs, err := r.list(ctx, repository.JoinPath(locksRoot, id, tempCodesNode))
	if err != nil {
		return nil, err
	}

	codes := make([]domain.TempCode, 0, len(docs))
	for _, doc := range docs {
		var tc domain.TempCode
		if err := decode(doc, &tc); err != nil {
			return nil, err
		}
		if tc.Code == "" {
			tc.Code = doc.Key()
		}
		if tc.LockID == "" {
			tc.LockID = id
		}
		codes = append(codes, tc)
	}
	return codes, nil
}

// Delete removes a code.
func (r *TempCodeRepository) Delete(ctx context.Context, lockID, code string) error {
	path, err := codePath(lockID, code)
	if err != nil {
		return err
	}
	return r.delete(ctx, path)
}

func decode(doc port.Document, out any) error {
	if err := json.Unmarshal(doc.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", doc.Path, err)
	}
	return nil
}

var _ port.TempCodeRepository = (*TempCodeRepository)(nil)
