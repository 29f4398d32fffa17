package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
)

const eventPublishTimeout = 3 * time.Second

// publishLockEvent sends the event without failing the caller. Publishing
// outlives request cancellation so a disconnecting client still produces the event.
func publishLockEvent(ctx context.Context, events port.EventPublisher, logger *zap.Logger, event domain.LockEvent) {
	if events == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := events.PublishLockEvent(pubCtx, event); err != nil {
		logger.Warn("publish lock event failed",
			zap.String("event_type", event.Type),
			zap.String("lock_id", event.LockID),
			zap.Error(err),
		)
	}
}
