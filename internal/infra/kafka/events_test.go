package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

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

func newTestPublisher(t *testing.T, async *fakeAsyncProducer) *EventPublisher {
	t.Helper()

	producer := &Producer{
		producer: async,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "access",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	return NewEventPublisher(producer, config.AppSettings{
		Name: "access-engine",
		Env:  "test",
	}, zaptest.NewLogger(t))
}

func TestPublishDecisionRecorded(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	decidedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	event := domain.DecisionRecordedEvent{
		EventID:       "event-123",
		TenantID:      "tenant-456",
		Sequence:      42,
		PrincipalID:   "principal-789",
		ResourceType:  "invoice",
		ResourceID:    "invoice-1",
		Action:        "read",
		Outcome:       domain.DecisionDeny,
		Reason:        domain.ReasonConstraint,
		PolicyVersion: "2026-03-01",
		DecidedAt:     decidedAt,
	}

	if err := publisher.PublishDecisionRecorded(context.Background(), event); err != nil {
		t.Fatalf("PublishDecisionRecorded returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "access.decision.recorded" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil {
			t.Fatalf("Key.Encode returned error: %v", err)
		}
		if string(key) != "tenant-456" {
			t.Fatalf("expected tenant partition key, got %s", key)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope struct {
			EventID   string          `json:"event_id"`
			EventType string          `json:"event_type"`
			TenantID  string          `json:"tenant_id"`
			Version   string          `json:"version"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}

		if envelope.EventID != "event-123" {
			t.Errorf("unexpected event_id: %s", envelope.EventID)
		}
		if envelope.EventType != "decision.recorded" {
			t.Errorf("unexpected event_type: %s", envelope.EventType)
		}
		if envelope.TenantID != "tenant-456" {
			t.Errorf("unexpected tenant_id: %s", envelope.TenantID)
		}
		if envelope.Version != schemaVersion {
			t.Errorf("unexpected schema version: %s", envelope.Version)
		}

		var payload struct {
			Sequence uint64 `json:"sequence"`
			Outcome  string `json:"outcome"`
			Reason   string `json:"reason"`
		}
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.Sequence != 42 {
			t.Errorf("unexpected sequence: %d", payload.Sequence)
		}
		if payload.Outcome != "deny" {
			t.Errorf("unexpected outcome: %s", payload.Outcome)
		}
		if payload.Reason != string(domain.ReasonConstraint) {
			t.Errorf("unexpected reason: %s", payload.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message on producer input channel")
	}
}

func TestPublishSessionRevokedGeneratesEventID(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	publisher := newTestPublisher(t, asyncProducer)

	event := domain.SessionRevokedEvent{
		SessionID:   "session-1",
		TenantID:    "tenant-1",
		PrincipalID: "principal-1",
		RevokedBy:   "admin-1",
		Reason:      "admin_forced",
	}

	if err := publisher.PublishSessionRevoked(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionRevoked returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "access.session.revoked" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope struct {
			EventID   string    `json:"event_id"`
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if envelope.EventID == "" {
			t.Error("expected generated event_id for zero-value input")
		}
		if envelope.Timestamp.IsZero() {
			t.Error("expected timestamp to be filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("expected message on producer input channel")
	}
}

func TestPublishRespectsContextCancellation(t *testing.T) {
	asyncProducer := newFakeAsyncProducer()
	// Fill the buffered input channel so the next publish blocks.
	asyncProducer.input <- &sarama.ProducerMessage{}

	publisher := newTestPublisher(t, asyncProducer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishDomainFact(ctx, domain.DomainFactEvent{
		TenantID:    "tenant-1",
		PrincipalID: "principal-1",
		Kind:        "estimate.approved",
	})
	if err == nil {
		t.Fatal("expected context error when producer input is full")
	}
}
