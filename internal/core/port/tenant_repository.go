package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// TenantRepository handles tenant provisioning and lifecycle state.
type TenantRepository interface {
	Create(ctx context.Context, tenant domain.Tenant) error
	GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status domain.TenantStatus) error
}
