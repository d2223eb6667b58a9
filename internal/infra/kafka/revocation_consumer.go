package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// SessionRevoker applies a revocation observed on the bus to local state.
type SessionRevoker interface {
	ApplyRemoteRevocation(ctx context.Context, event domain.SessionRevokedEvent) error
}

// RevocationConsumer applies session revocations published by peer replicas
// so that forced logout takes effect on every node.
type RevocationConsumer struct {
	revoker SessionRevoker
	logger  *zap.Logger
}

// NewRevocationConsumer constructs a consumer that mirrors remote revocations.
func NewRevocationConsumer(revoker SessionRevoker, logger *zap.Logger) *RevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationConsumer{revoker: revoker, logger: logger}
}

type revocationPayload struct {
	SessionID   string         `json:"session_id"`
	TenantID    string         `json:"tenant_id"`
	PrincipalID string         `json:"principal_id"`
	RevokedAt   time.Time      `json:"revoked_at"`
	RevokedBy   string         `json:"revoked_by"`
	Reason      string         `json:"reason"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HandleMessage decodes a Kafka message and applies the revocation.
func (c *RevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope struct {
		EventID   string          `json:"event_id"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	var payload revocationPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("decode revocation payload: %w", err)
	}

	return c.HandleEvent(ctx, domain.SessionRevokedEvent{
		EventID:     envelope.EventID,
		SessionID:   payload.SessionID,
		TenantID:    payload.TenantID,
		PrincipalID: payload.PrincipalID,
		RevokedAt:   payload.RevokedAt,
		RevokedBy:   payload.RevokedBy,
		Reason:      payload.Reason,
		Metadata:    payload.Metadata,
	})
}

// HandleEvent applies the revocation locally. Already-terminated sessions are
// a no-op, so replays are safe.
func (c *RevocationConsumer) HandleEvent(ctx context.Context, event domain.SessionRevokedEvent) error {
	if c.revoker == nil {
		return nil
	}

	if err := c.revoker.ApplyRemoteRevocation(ctx, event); err != nil {
		c.logger.Warn("failed to apply remote revocation",
			zap.String("session_id", event.SessionID),
			zap.String("tenant_id", event.TenantID),
			zap.Error(err),
		)
		return fmt.Errorf("apply remote revocation: %w", err)
	}

	return nil
}
