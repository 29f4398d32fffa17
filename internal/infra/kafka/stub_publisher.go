package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishLockEvent logs the event.
func (p *StubPublisher) PublishLockEvent(_ context.Context, event domain.LockEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", event.Type),
		zap.String("lock_id", event.LockID),
		zap.String("actor_id", event.ActorID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", event.Attributes),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
