package port

import (
	"context"
	"time"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
)

// LockRepository persists the lock registry.
type LockRepository interface {
	Get(ctx context.Context, lockID string) (*domain.Lock, error)
	Create(ctx context.Context, lock domain.Lock) error
	Save(ctx context.Context, lock domain.Lock) error
	Delete(ctx context.Context, lockID string) error
	List(ctx context.Context) ([]domain.Lock, error)
	// KnownLockIDs merges registry entries with lock ids that only exist as data subtrees.
	KnownLockIDs(ctx context.Context) ([]string, error)
	// DeleteData removes everything stored under locks/{lockId}.
	DeleteData(ctx context.Context, lockID string) (int, error)
}

// TempCodeRepository persists temporary codes per lock.
type TempCodeRepository interface {
	// Create stores the code only if no code with the same value exists on the lock.
	Create(ctx context.Context, code domain.TempCode) error
	Get(ctx context.Context, lockID, code string) (*domain.TempCode, error)
	// Update applies mutate under optimistic concurrency, retrying on conflicts.
	// Returning false from mutate skips the write.
	Update(ctx context.Context, lockID, code string, mutate func(*domain.TempCode) (bool, error)) (*domain.TempCode, error)
	List(ctx context.Context, lockID string) ([]domain.TempCode, error)
	Delete(ctx context.Context, lockID, code string) error
}

// ActivityLogRepository persists the per-lock activity feed.
type ActivityLogRepository interface {
	Append(ctx context.Context, lockID string, entry domain.ActivityEntry) (string, error)
	List(ctx context.Context, lockID string) ([]domain.ActivityEntry, error)
	Delete(ctx context.Context, lockID, entryID string) error
}

// AuditLogRepository persists audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) (string, error)
	List(ctx context.Context) ([]domain.AuditEntry, error)
	Delete(ctx context.Context, entryID string) error
}

// PendingUserRepository persists face enrolment requests.
type PendingUserRepository interface {
	Save(ctx context.Context, user domain.PendingUser) error
	List(ctx context.Context, lockID string) ([]domain.PendingUser, error)
	Delete(ctx context.Context, lockID, userID string) error
}

// SessionStore keeps dashboard sessions with a sliding expiry.
type SessionStore interface {
	Save(ctx context.Context, session domain.Session, ttl time.Duration) error
	// Touch returns the session and extends its expiry by ttl.
	Touch(ctx context.Context, sessionID string, ttl time.Duration) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
