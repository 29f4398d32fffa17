package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
)

const schemaVersion = "1.0"

// envelope is the JSON value written for every lock event.
type envelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	LockID    string            `json:"lock_id"`
	ActorID   string            `json:"actor_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventPublisher writes lock lifecycle events to "<prefix>.<event type>",
// keyed by lock id.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	source   map[string]string
	now      func() time.Time
}

func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{
		producer: producer,
		logger:   logger,
		source:   map[string]string{"service": appCfg.Name, "environment": appCfg.Env},
		now:      time.Now,
	}
}

// PublishLockEvent blocks only until the producer accepts the message or ctx ends.
func (p *EventPublisher) PublishLockEvent(ctx context.Context, event domain.LockEvent) error {
	if event.Type == "" {
		return fmt.Errorf("publish lock event: missing event type")
	}

	value, err := json.Marshal(p.envelopeFor(ctx, event))
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(event.Type),
		Key:   sarama.StringEncoder(event.LockID),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		p.logger.Warn("lock event dropped", zap.String("event_type", event.Type), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (p *EventPublisher) envelopeFor(ctx context.Context, event domain.LockEvent) envelope {
	env := envelope{
		EventID:   event.EventID,
		EventType: event.Type,
		LockID:    event.LockID,
		ActorID:   event.ActorID,
		Timestamp: event.OccurredAt,
		Version:   schemaVersion,
		Payload:   event.Attributes,
		Metadata:  make(map[string]string, len(p.source)+1),
	}
	if env.EventID == "" {
		env.EventID = uuid.NewString()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = p.now()
	}
	env.Timestamp = env.Timestamp.UTC()

	for k, v := range p.source {
		env.Metadata[k] = v
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.Metadata["trace_id"] = sc.TraceID().String()
	}
	return env
}

var _ port.EventPublisher = (*EventPublisher)(nil)
