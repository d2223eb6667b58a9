package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

var (
	// ErrTenantNotFound indicates the tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrUnknownIndustry indicates an unrecognised industry vertical.
	ErrUnknownIndustry = errors.New("unknown industry vertical")
)

// ProvisionTenantInput captures the payload for provisioning a tenant.
type ProvisionTenantInput struct {
	Name     string
	Industry domain.IndustryVertical
	Plan     domain.PlanTier
}

// TenantService handles tenant provisioning and lifecycle transitions.
// Suspension and cancellation force-revoke every session in the tenant.
type TenantService struct {
	tenants   port.TenantRepository
	sessions  *SessionService
	publisher port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTenantService constructs a TenantService.
func NewTenantService(tenants port.TenantRepository, sessions *SessionService, publisher port.EventPublisher, logger *zap.Logger) *TenantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantService{
		tenants:   tenants,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Provision creates a new active tenant.
func (s *TenantService) Provision(ctx context.Context, input ProvisionTenantInput) (*domain.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if !input.Industry.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndustry, input.Industry)
	}

	plan := input.Plan
	if plan == "" {
		plan = domain.PlanStarter
	}

	tenant := domain.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Industry:  input.Industry,
		Plan:      plan,
		Status:    domain.TenantActive,
		CreatedAt: s.now().UTC(),
	}

	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	s.publishLifecycle(ctx, tenant)
	return &tenant, nil
}

// Suspend transitions the tenant to suspended and revokes its sessions.
func (s *TenantService) Suspend(ctx context.Context, tenantID, actorID string) error {
	return s.transition(ctx, tenantID, actorID, domain.TenantSuspended, RevokeReasonTenantSuspended)
}

// Cancel soft-deletes the tenant. Rows survive while audit retention
// applies; purge is handled by an external retention job.
func (s *TenantService) Cancel(ctx context.Context, tenantID, actorID string) error {
	return s.transition(ctx, tenantID, actorID, domain.TenantCancelled, RevokeReasonTenantSuspended)
}

func (s *TenantService) transition(ctx context.Context, tenantID, actorID string, status domain.TenantStatus, revokeReason string) error {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("get tenant: %w", err)
	}
	if tenant.Status == status {
		return nil
	}

	if err := s.tenants.UpdateStatus(ctx, tenantID, status); err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	tenant.Status = status

	if s.sessions != nil {
		if _, err := s.sessions.RevokeAllForTenant(ctx, tenantID, actorID, revokeReason); err != nil {
			s.logger.Error("revoke tenant sessions failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
	}

	s.publishLifecycle(ctx, *tenant)
	return nil
}

func (s *TenantService) publishLifecycle(ctx context.Context, tenant domain.Tenant) {
	if s.publisher == nil {
		return
	}
	event := domain.TenantLifecycleEvent{
		EventID:   uuid.NewString(),
		TenantID:  tenant.ID,
		Industry:  tenant.Industry,
		Status:    tenant.Status,
		ChangedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishTenantLifecycle(ctx, event); err != nil {
		s.logger.Warn("publish tenant lifecycle failed", zap.Error(err))
	}
}
