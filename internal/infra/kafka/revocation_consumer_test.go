package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

type stubRevoker struct {
	applied []domain.SessionRevokedEvent
	err     error
}

func (s *stubRevoker) ApplyRemoteRevocation(_ context.Context, event domain.SessionRevokedEvent) error {
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, event)
	return nil
}

func TestRevocationConsumerHandleMessage(t *testing.T) {
	revoker := &stubRevoker{}
	consumer := NewRevocationConsumer(revoker, zaptest.NewLogger(t))

	value := []byte(`{
		"event_id": "event-1",
		"event_type": "session.revoked",
		"tenant_id": "tenant-1",
		"payload": {
			"session_id": "session-9",
			"tenant_id": "tenant-1",
			"principal_id": "principal-2",
			"revoked_at": "2026-03-14T09:30:00Z",
			"revoked_by": "admin-7",
			"reason": "admin_forced"
		}
	}`)

	msg := &sarama.ConsumerMessage{Topic: "access.session.revoked", Value: value}
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}

	if len(revoker.applied) != 1 {
		t.Fatalf("expected 1 applied revocation, got %d", len(revoker.applied))
	}

	applied := revoker.applied[0]
	if applied.SessionID != "session-9" {
		t.Errorf("unexpected session id: %s", applied.SessionID)
	}
	if applied.TenantID != "tenant-1" {
		t.Errorf("unexpected tenant id: %s", applied.TenantID)
	}
	if applied.RevokedBy != "admin-7" {
		t.Errorf("unexpected revoked_by: %s", applied.RevokedBy)
	}
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if !applied.RevokedAt.Equal(want) {
		t.Errorf("unexpected revoked_at: %v", applied.RevokedAt)
	}
}

func TestRevocationConsumerRejectsMalformedMessage(t *testing.T) {
	consumer := NewRevocationConsumer(&stubRevoker{}, zaptest.NewLogger(t))

	msg := &sarama.ConsumerMessage{Value: []byte("not json")}
	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for malformed message")
	}

	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestRevocationConsumerPropagatesRevokerError(t *testing.T) {
	revoker := &stubRevoker{err: errors.New("store unavailable")}
	consumer := NewRevocationConsumer(revoker, zaptest.NewLogger(t))

	err := consumer.HandleEvent(context.Background(), domain.SessionRevokedEvent{
		SessionID: "session-1",
		TenantID:  "tenant-1",
	})
	if err == nil {
		t.Fatal("expected error from failing revoker")
	}
}
