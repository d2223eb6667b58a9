package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

// RecordFactInput is a domain-specific audit fact supplied by a business
// module through the record_event surface.
type RecordFactInput struct {
	TenantID    string
	PrincipalID string
	Kind        string
	Payload     map[string]any
	RequestID   string
}

// EventService lets business modules append domain facts ("estimate
// approved") to the same tenant-partitioned audit trail access decisions
// use, and fans them out on the bus.
type EventService struct {
	audit     *AuditRecorder
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs an EventService.
func NewEventService(audit *AuditRecorder, publisher port.EventPublisher, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{
		audit:     audit,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordFact appends the fact to the audit trail and publishes it.
func (s *EventService) RecordFact(ctx context.Context, input RecordFactInput) error {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		return fmt.Errorf("event kind is required")
	}

	now := s.now().UTC()
	entry := domain.AuditEntry{
		TenantID:    tenantID,
		PrincipalID: input.PrincipalID,
		Action:      kind,
		Outcome:     domain.DecisionAllow,
		Reason:      domain.ReasonGranted,
		RequestID:   input.RequestID,
		At:          now,
		Metadata:    input.Payload,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("record domain fact: %w", err)
	}

	if s.publisher != nil {
		event := domain.DomainFactEvent{
			EventID:     uuid.NewString(),
			TenantID:    tenantID,
			PrincipalID: input.PrincipalID,
			Kind:        kind,
			OccurredAt:  now,
			Payload:     input.Payload,
		}
		if err := s.publisher.PublishDomainFact(ctx, event); err != nil {
			s.logger.Warn("publish domain fact failed", zap.Error(err))
		}
	}

	return nil
}
