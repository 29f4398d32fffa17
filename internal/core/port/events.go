package port

import (
	"context"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
)

// EventPublisher publishes lock events to the message bus.
type EventPublisher interface {
	PublishLockEvent(ctx context.Context, event domain.LockEvent) error
}

// AuditSink receives audit entries. Implementations must not block for long.
type AuditSink interface {
	WriteAudit(ctx context.Context, entry domain.AuditEntry) error
}

// FaceImageStore holds enrolment images keyed by lock.
type FaceImageStore interface {
	DeleteLockImages(ctx context.Context, lockID string) (int, error)
}
