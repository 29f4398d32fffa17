package repository

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyExists indicates a create-only write found an existing record.
	ErrAlreadyExists = errors.New("repository: already exists")
	// ErrVersionConflict indicates a conditional write lost against a concurrent writer.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrStoreTimeout indicates the store did not answer within the operation timeout.
	ErrStoreTimeout = errors.New("repository: store timeout")
	// ErrInvalidPath indicates a malformed document path.
	ErrInvalidPath = errors.New("repository: invalid path")
	// ErrTooManyConflicts indicates an optimistic update kept losing and gave up.
	ErrTooManyConflicts = errors.New("repository: too many conflicting writers")
)

// WrapTimeout maps deadline errors onto ErrStoreTimeout and leaves everything else alone.
func WrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrStoreTimeout)
	}
	return err
}
