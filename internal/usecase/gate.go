package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

const (
	// ActionReadDeleted is the elevated action required to include
	// soft-deleted rows in a read.
	ActionReadDeleted = "read_deleted"
)

var (
	// ErrTenantPredicate indicates an operation tried to address a tenant
	// other than the session's without a cross-tenant grant.
	ErrTenantPredicate = errors.New("tenant isolation predicate violated")
	// ErrElevationRequired indicates the includeDeleted flag was set
	// without the elevated grant it requires.
	ErrElevationRequired = errors.New("elevated permission required")
	// ErrSessionRequired indicates the gate was invoked without a live session.
	ErrSessionRequired = errors.New("resolved session required")
)

// GateQuery is a read request through the isolation gate. Callers never
// supply a tenant id: the gate injects the session's tenant into every
// statement.
type GateQuery struct {
	Type           string
	IDs            []string
	OwnerID        *string
	IncludeDeleted bool
	Limit          int
	Offset         int

	// TenantOverride is honored only when the accompanying decision
	// carries an explicit cross-tenant grant.
	TenantOverride string
}

// GateMutation is a write request through the isolation gate.
type GateMutation struct {
	Record domain.EntityRecord
}

// TenantIsolationGate wraps the data layer with an implicit tenant
// predicate. It is deliberately independent from the access evaluator:
// even a caller that bypasses authorization cannot cross a tenant boundary
// here, so leakage requires defeating both layers.
type TenantIsolationGate struct {
	entities port.EntityRepository
	audit    *AuditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewTenantIsolationGate constructs a TenantIsolationGate.
func NewTenantIsolationGate(entities port.EntityRepository, audit *AuditRecorder, logger *zap.Logger) *TenantIsolationGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantIsolationGate{
		entities: entities,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock injects a custom clock (primarily for testing).
func (g *TenantIsolationGate) WithClock(now func() time.Time) *TenantIsolationGate {
	if now != nil {
		g.now = now
	}
	return g
}

// Read selects entity rows inside the session's tenant. Soft-deleted rows
// are excluded unless IncludeDeleted is set, which requires a decision
// allowing the elevated read_deleted action.
func (g *TenantIsolationGate) Read(ctx context.Context, session *domain.Session, q GateQuery, decision domain.Decision) ([]domain.EntityRecord, error) {
	tenantID, err := g.effectiveTenant(session, q.TenantOverride, decision)
	if err != nil {
		return nil, err
	}

	// Seeing soft-deleted rows takes a decision that authorized the
	// elevated read_deleted action for this entity type, not just any
	// allow.
	if q.IncludeDeleted && !decision.Permits(ActionReadDeleted, q.Type) {
		return nil, ErrElevationRequired
	}

	records, err := g.entities.Select(ctx, port.EntityQuery{
		TenantID:       tenantID,
		Type:           q.Type,
		IDs:            q.IDs,
		OwnerID:        q.OwnerID,
		IncludeDeleted: q.IncludeDeleted,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}

	// Drop anything the repository returned outside the predicate. A row
	// crossing here means the repository itself is broken, which is worth
	// knowing loudly.
	filtered := records[:0]
	for _, record := range records {
		if record.TenantID != tenantID {
			g.logger.Error("isolation predicate breach filtered",
				zap.String("expected_tenant", tenantID),
				zap.String("row_tenant", record.TenantID),
				zap.String("entity_type", record.Type),
			)
			continue
		}
		filtered = append(filtered, record)
	}

	return filtered, nil
}

// Write inserts or updates an entity row, stamping the session's tenant on
// the record. A record addressing a foreign tenant is rejected before it
// reaches the repository.
func (g *TenantIsolationGate) Write(ctx context.Context, session *domain.Session, m GateMutation, decision domain.Decision) error {
	record := m.Record
	tenantID, err := g.effectiveTenant(session, record.TenantID, decision)
	if err != nil {
		return err
	}
	record.TenantID = tenantID

	now := g.now().UTC()
	isInsert := record.CreatedAt.IsZero()
	if isInsert {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if isInsert {
		err = g.entities.Insert(ctx, record)
	} else {
		err = g.entities.Update(ctx, record)
	}
	if err != nil {
		return fmt.Errorf("write entity: %w", err)
	}

	g.auditMutation(ctx, session, record, "entity.write", decision)
	return nil
}

// Delete soft-deletes an entity row: the deletion timestamp is set and the
// row stays for audit retention. Purge is an out-of-core retention job.
func (g *TenantIsolationGate) Delete(ctx context.Context, session *domain.Session, entityType, entityID string, decision domain.Decision) error {
	if session == nil || session.State != domain.SessionActive {
		return ErrSessionRequired
	}
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return fmt.Errorf("entity type and id are required")
	}

	deleted, err := g.entities.SoftDelete(ctx, session.TenantID, entityType, entityID)
	if err != nil {
		return fmt.Errorf("soft delete entity: %w", err)
	}
	if deleted {
		g.auditMutation(ctx, session, domain.EntityRecord{
			TenantID: session.TenantID,
			Type:     entityType,
			ID:       entityID,
		}, "entity.delete", decision)
	}
	return nil
}

// effectiveTenant resolves which tenant the operation may address. The
// session's tenant always qualifies; any other tenant requires the decision
// to carry an explicit cross-tenant grant.
func (g *TenantIsolationGate) effectiveTenant(session *domain.Session, requested string, decision domain.Decision) (string, error) {
	if session == nil || session.State != domain.SessionActive {
		return "", ErrSessionRequired
	}
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == session.TenantID {
		return session.TenantID, nil
	}
	if decision.Allowed() && decision.CrossTenant {
		return requested, nil
	}
	g.logger.Warn("cross-tenant access blocked at gate",
		zap.String("session_tenant", session.TenantID),
		zap.String("requested_tenant", requested),
	)
	return "", ErrTenantPredicate
}

func (g *TenantIsolationGate) auditMutation(ctx context.Context, session *domain.Session, record domain.EntityRecord, action string, decision domain.Decision) {
	if g.audit == nil {
		return
	}
	entry := domain.AuditEntry{
		TenantID:      record.TenantID,
		PrincipalID:   session.PrincipalID,
		SessionID:     session.ID,
		ResourceType:  record.Type,
		ResourceID:    record.ID,
		Action:        action,
		Outcome:       domain.DecisionAllow,
		RuleID:        decision.RuleID,
		Reason:        decision.Reason,
		PolicyVersion: decision.PolicyVersion,
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.logger.Error("audit mutation failed", zap.Error(err))
	}
}
