// Package docstore maps the lock domain onto the hierarchical document layout:
//
//	locks_registry/{lockId}
//	locks/{lockId}/temp_codes/{code}
//	locks/{lockId}/activity_log/{entryId}
//	locks/{lockId}/pending_users/{userId}
//	audit_logs/{entryId}
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	registryRoot = "locks_registry"
	locksRoot    = "locks"
	auditRoot    = "audit_logs"

	tempCodesNode    = "temp_codes"
	activityNode     = "activity_log"
	pendingUsersNode = "pending_users"

	defaultOperationTimeout = 5 * time.Second
)

// Repositories groups the typed repositories sharing one document store.
type Repositories struct {
	Locks        *LockRepository
	TempCodes    *TempCodeRepository
	Activity     *ActivityLogRepository
	Audit        *AuditLogRepository
	PendingUsers *PendingUserRepository
}

// NewRepositories wires all repositories on top of store. Every store call is
// bounded by timeout; zero selects the default.
func NewRepositories(store port.DocumentStore, timeout time.Duration) *Repositories {
	b := base{store: store, timeout: timeout}
	if b.timeout <= 0 {
		b.timeout = defaultOperationTimeout
	}
	return &Repositories{
		Locks:        &LockRepository{base: b},
		TempCodes:    &TempCodeRepository{base: b, maxAttempts: defaultUpdateAttempts},
		Activity:     &ActivityLogRepository{base: b},
		Audit:        &AuditLogRepository{base: b},
		PendingUsers: &PendingUserRepository{base: b},
	}
}

type base struct {
	store   port.DocumentStore
	timeout time.Duration
}

func (b base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b base) get(ctx context.Context, path string, out any) (int64, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()

	doc, err := b.store.Get(ctx, path)
	if err != nil {
		return 0, repository.WrapTimeout("get "+path, err)
	}
	if err := json.Unmarshal(doc.Data, out); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc.Version, nil
}

func (b base) put(ctx context.Context, path string, value any, expectedVersion int64) (int64, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}

	ctx, cancel := b.bounded(ctx)
	defer cancel()

	version, err := b.store.Put(ctx, path, payload, expectedVersion)
	if err != nil {
		return 0, repository.WrapTimeout("put "+path, err)
	}
	return version, nil
}

func (b base) push(ctx context.Context, parent string, value any) (string, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode %s entry: %w", parent, err)
	}

	ctx, cancel := b.bounded(ctx)
	defer cancel()

	key, err := b.store.Push(ctx, parent, payload)
	if err != nil {
		return "", repository.WrapTimeout("push "+parent, err)
	}
	return key, nil
}

func (b base) list(ctx context.Context, parent string) ([]port.Document, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()

	docs, err := b.store.List(ctx, parent)
	if err != nil {
		return nil, repository.WrapTimeout("list "+parent, err)
	}
	return docs, nil
}

func (b base) delete(ctx context.Context, path string) error {
	ctx, cancel := b.bounded(ctx)
	defer cancel()

	return repository.WrapTimeout("delete "+path, b.store.Delete(ctx, path))
}

func (b base) deleteTree(ctx context.Context, prefix string) (int, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()

	n, err := b.store.DeleteTree(ctx, prefix)
	return n, repository.WrapTimeout("delete tree "+prefix, err)
}

func (b base) childKeys(ctx context.Context, parent string) ([]string, error) {
	ctx, cancel := b.bounded(ctx)
	defer cancel()

	keys, err := b.store.ListChildKeys(ctx, parent)
	return keys, repository.WrapTimeout("list keys "+parent, err)
}

// segment rejects identifiers that would escape their path position.
func segment(kind, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.ContainsAny(trimmed, "/.#$[]") {
		return "", fmt.Errorf("%w: %s %q", repository.ErrInvalidPath, kind, value)
	}
	return trimmed, nil
}
