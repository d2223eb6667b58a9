package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// PrincipalRepository resolves principals and their tenant bindings.
type PrincipalRepository interface {
	GetByID(ctx context.Context, principalID string) (*domain.Principal, error)
	ListBindings(ctx context.Context, principalID string) ([]domain.TenantBinding, error)
	RevokeBinding(ctx context.Context, principalID, tenantID string) error
}
