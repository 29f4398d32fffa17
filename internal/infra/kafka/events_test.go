package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
	once   sync.Once
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error {
	f.once.Do(func() { close(f.errors) })
	return nil
}

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, asyncProducer *fakeAsyncProducer) *EventPublisher {
	t.Helper()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "smartlock"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	return NewEventPublisher(producer, config.AppSettings{
		Name: "smartlock-api",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishLockEvent(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	occurredAt := time.Date(2025, 10, 12, 9, 30, 0, 0, time.UTC)
	event := domain.LockEvent{
		EventID:    "event-123",
		Type:       domain.EventTempCodeVerified,
		LockID:     "front-door",
		ActorID:    "system",
		OccurredAt: occurredAt,
		Attributes: map[string]any{"code": "12****", "remaining_uses": 0},
	}

	if err := publisher.PublishLockEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishLockEvent returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "smartlock.lock.temp_code.verified" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(key) != "front-door" {
			t.Fatalf("unexpected key: %s", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_id"]; got != event.EventID {
			t.Fatalf("unexpected event_id: %v", got)
		}

		if got := envelope["lock_id"]; got != event.LockID {
			t.Fatalf("unexpected lock_id: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok || timestamp != occurredAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", envelope["timestamp"])
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if payload["code"] != "12****" {
			t.Fatalf("unexpected payload: %v", payload)
		}

		envelopeMetadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}

		if envelopeMetadata["service"] != "smartlock-api" || envelopeMetadata["environment"] != "test" {
			t.Fatalf("unexpected metadata: %v", envelopeMetadata)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishLockEventGeneratesID(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	if err := publisher.PublishLockEvent(context.Background(), domain.LockEvent{Type: domain.EventLockDeleted, LockID: "old"}); err != nil {
		t.Fatalf("PublishLockEvent returned error: %v", err)
	}

	msg := <-asyncProducer.input
	bytes, _ := msg.Value.Encode()
	var envelope map[string]any
	if err := json.Unmarshal(bytes, &envelope); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}
	if id, _ := envelope["event_id"].(string); len(id) != 36 {
		t.Fatalf("expected generated uuid, got %v", envelope["event_id"])
	}
}

func TestPublishLockEventHonoursContext(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	// Fill the single-slot input so the next send blocks.
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishLockEvent(ctx, domain.LockEvent{Type: domain.EventLockRegistered, LockID: "lock-1"})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublishLockEventRequiresType(t *testing.T) {
	publisher := newTestPublisher(t, newFakeAsyncProducer())
	if err := publisher.PublishLockEvent(context.Background(), domain.LockEvent{LockID: "lock-1"}); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestTopicName(t *testing.T) {
	p := &Producer{cfg: config.KafkaSettings{TopicPrefix: "smartlock"}}
	if got := p.TopicName("lock.deleted"); got != "smartlock.lock.deleted" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := p.TopicName("smartlock.lock.deleted"); got != "smartlock.lock.deleted" {
		t.Fatalf("prefix applied twice: %s", got)
	}

	p = &Producer{}
	if got := p.TopicName("lock.deleted"); got != "lock.deleted" {
		t.Fatalf("unexpected topic without prefix %s", got)
	}
}

func TestStubPublisherLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stub := NewStubPublisher(zap.New(core))

	if err := stub.PublishLockEvent(context.Background(), domain.LockEvent{Type: domain.EventLockRegistered, LockID: "lock-1"}); err != nil {
		t.Fatalf("PublishLockEvent returned error: %v", err)
	}

	entries := logs.FilterMessage("Stub event published").All()
	if len(entries) != 1 || entries[0].ContextMap()["lock_id"] != "lock-1" {
		t.Fatalf("unexpected log entries %+v", entries)
	}
}

func TestProducerLogsDeliveryErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{}, zap.New(core))

	asyncProducer.errors <- &sarama.ProducerError{
		Msg: &sarama.ProducerMessage{Topic: "smartlock.lock.deleted"},
		Err: errors.New("broker down"),
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	entries := logs.FilterMessage("kafka delivery failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["topic"] != "smartlock.lock.deleted" {
		t.Fatalf("unexpected log entries %+v", entries)
	}
}

func TestEnvelopeCarriesTraceID(t *testing.T) {
	publisher := newTestPublisher(t, newFakeAsyncProducer())
	publisher.now = func() time.Time { return time.Date(2025, 10, 12, 9, 0, 0, 0, time.FixedZone("ICT", 7*3600)) }

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	env := publisher.envelopeFor(ctx, domain.LockEvent{Type: domain.EventLockDeleted, LockID: "garage"})
	if env.Metadata["trace_id"] != traceID.String() {
		t.Fatalf("expected trace id in metadata, got %v", env.Metadata)
	}
	if env.Timestamp.Location() != time.UTC || env.Timestamp.Hour() != 2 {
		t.Fatalf("expected timestamp normalised to UTC, got %v", env.Timestamp)
	}
	if env.Metadata["service"] != "smartlock-api" {
		t.Fatalf("expected service metadata, got %v", env.Metadata)
	}
}
