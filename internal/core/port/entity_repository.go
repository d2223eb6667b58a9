package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// EntityQuery selects tenant-scoped entity rows. TenantID is injected by the
// isolation gate, never supplied by callers directly.
type EntityQuery struct {
	TenantID       string
	Type           string
	IDs            []string
	OwnerID        *string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// EntityRepository is the data layer beneath the tenant isolation gate.
// Every operation requires an explicit tenant id; implementations must
// apply it as a predicate on every statement.
type EntityRepository interface {
	Select(ctx context.Context, q EntityQuery) ([]domain.EntityRecord, error)
	Insert(ctx context.Context, record domain.EntityRecord) error
	Update(ctx context.Context, record domain.EntityRecord) error
	SoftDelete(ctx context.Context, tenantID, entityType, entityID string) (bool, error)
}
