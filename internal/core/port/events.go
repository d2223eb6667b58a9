package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// EventPublisher publishes engine events to the message bus.
type EventPublisher interface {
	PublishDecisionRecorded(ctx context.Context, event domain.DecisionRecordedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishPolicyPublished(ctx context.Context, event domain.PolicyPublishedEvent) error
	PublishTenantLifecycle(ctx context.Context, event domain.TenantLifecycleEvent) error
	PublishDomainFact(ctx context.Context, event domain.DomainFactEvent) error
}
