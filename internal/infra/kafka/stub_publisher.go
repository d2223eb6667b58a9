package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, tenantID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("tenant_id", tenantID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishDecisionRecorded logs access.decision.recorded events.
func (p *StubPublisher) PublishDecisionRecorded(_ context.Context, event domain.DecisionRecordedEvent) error {
	payload := map[string]any{
		"tenant_id":      event.TenantID,
		"sequence":       event.Sequence,
		"principal_id":   event.PrincipalID,
		"session_id":     event.SessionID,
		"resource_type":  event.ResourceType,
		"resource_id":    event.ResourceID,
		"action":         event.Action,
		"outcome":        event.Outcome,
		"reason":         event.Reason,
		"rule_id":        event.RuleID,
		"policy_version": event.PolicyVersion,
		"metadata":       event.Metadata,
	}
	p.logEvent("decision.recorded", event.TenantID, event.DecidedAt, payload)
	return nil
}

// PublishSessionRevoked logs access.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"session_id":   event.SessionID,
		"tenant_id":    event.TenantID,
		"principal_id": event.PrincipalID,
		"revoked_by":   event.RevokedBy,
		"reason":       event.Reason,
		"metadata":     event.Metadata,
	}
	p.logEvent("session.revoked", event.TenantID, event.RevokedAt, payload)
	return nil
}

// PublishPolicyPublished logs access.policy.published events.
func (p *StubPublisher) PublishPolicyPublished(_ context.Context, event domain.PolicyPublishedEvent) error {
	payload := map[string]any{
		"industry":     event.Industry,
		"version":      event.Version,
		"published_by": event.PublishedBy,
		"roles_total":  event.RolesTotal,
		"metadata":     event.Metadata,
	}
	p.logEvent("policy.published", "", event.PublishedAt, payload)
	return nil
}

// PublishTenantLifecycle logs access.tenant.lifecycle events.
func (p *StubPublisher) PublishTenantLifecycle(_ context.Context, event domain.TenantLifecycleEvent) error {
	payload := map[string]any{
		"tenant_id": event.TenantID,
		"industry":  event.Industry,
		"status":    event.Status,
		"metadata":  event.Metadata,
	}
	p.logEvent("tenant.lifecycle", event.TenantID, event.ChangedAt, payload)
	return nil
}

// PublishDomainFact logs access.fact.recorded events.
func (p *StubPublisher) PublishDomainFact(_ context.Context, event domain.DomainFactEvent) error {
	payload := map[string]any{
		"tenant_id":    event.TenantID,
		"principal_id": event.PrincipalID,
		"kind":         event.Kind,
		"payload":      event.Payload,
	}
	p.logEvent("fact.recorded", event.TenantID, event.OccurredAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
