package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	TenantID  string           `json:"tenant_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// publish keys messages by tenant so consumers observe per-tenant order.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, tenantID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		TenantID:  tenantID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if tenantID != "" {
		message.Key = sarama.StringEncoder(tenantID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishDecisionRecorded publishes access.decision.recorded events.
func (p *EventPublisher) PublishDecisionRecorded(ctx context.Context, event domain.DecisionRecordedEvent) error {
	payload := struct {
		TenantID      string         `json:"tenant_id"`
		Sequence      uint64         `json:"sequence"`
		PrincipalID   string         `json:"principal_id"`
		SessionID     string         `json:"session_id,omitempty"`
		ResourceType  string         `json:"resource_type"`
		ResourceID    string         `json:"resource_id,omitempty"`
		Action        string         `json:"action"`
		Outcome       string         `json:"outcome"`
		Reason        string         `json:"reason"`
		RuleID        string         `json:"rule_id,omitempty"`
		PolicyVersion string         `json:"policy_version,omitempty"`
		DecidedAt     time.Time      `json:"decided_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		TenantID:      event.TenantID,
		Sequence:      event.Sequence,
		PrincipalID:   event.PrincipalID,
		SessionID:     event.SessionID,
		ResourceType:  event.ResourceType,
		ResourceID:    event.ResourceID,
		Action:        event.Action,
		Outcome:       string(event.Outcome),
		Reason:        string(event.Reason),
		RuleID:        event.RuleID,
		PolicyVersion: event.PolicyVersion,
		DecidedAt:     event.DecidedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "decision.recorded", event.TenantID, event.DecidedAt, payload)
}

// PublishSessionRevoked publishes access.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID   string         `json:"session_id"`
		TenantID    string         `json:"tenant_id"`
		PrincipalID string         `json:"principal_id"`
		RevokedAt   time.Time      `json:"revoked_at"`
		RevokedBy   string         `json:"revoked_by"`
		Reason      string         `json:"reason"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		SessionID:   event.SessionID,
		TenantID:    event.TenantID,
		PrincipalID: event.PrincipalID,
		RevokedAt:   event.RevokedAt.UTC(),
		RevokedBy:   event.RevokedBy,
		Reason:      event.Reason,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.revoked", event.TenantID, event.RevokedAt, payload)
}

// PublishPolicyPublished publishes access.policy.published events.
func (p *EventPublisher) PublishPolicyPublished(ctx context.Context, event domain.PolicyPublishedEvent) error {
	payload := struct {
		Industry    string         `json:"industry"`
		Version     string         `json:"version"`
		PublishedAt time.Time      `json:"published_at"`
		PublishedBy string         `json:"published_by"`
		RolesTotal  int            `json:"roles_total"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Industry:    string(event.Industry),
		Version:     event.Version,
		PublishedAt: event.PublishedAt.UTC(),
		PublishedBy: event.PublishedBy,
		RolesTotal:  event.RolesTotal,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "policy.published", "", event.PublishedAt, payload)
}

// PublishTenantLifecycle publishes access.tenant.lifecycle events.
func (p *EventPublisher) PublishTenantLifecycle(ctx context.Context, event domain.TenantLifecycleEvent) error {
	payload := struct {
		TenantID  string         `json:"tenant_id"`
		Industry  string         `json:"industry"`
		Status    string         `json:"status"`
		ChangedAt time.Time      `json:"changed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		TenantID:  event.TenantID,
		Industry:  string(event.Industry),
		Status:    string(event.Status),
		ChangedAt: event.ChangedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "tenant.lifecycle", event.TenantID, event.ChangedAt, payload)
}

// PublishDomainFact publishes access.fact.recorded events.
func (p *EventPublisher) PublishDomainFact(ctx context.Context, event domain.DomainFactEvent) error {
	payload := struct {
		TenantID    string         `json:"tenant_id"`
		PrincipalID string         `json:"principal_id"`
		Kind        string         `json:"kind"`
		OccurredAt  time.Time      `json:"occurred_at"`
		Payload     map[string]any `json:"payload,omitempty"`
	}{
		TenantID:    event.TenantID,
		PrincipalID: event.PrincipalID,
		Kind:        event.Kind,
		OccurredAt:  event.OccurredAt.UTC(),
		Payload:     event.Payload,
	}

	return p.publish(ctx, event.EventID, "fact.recorded", event.TenantID, event.OccurredAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
