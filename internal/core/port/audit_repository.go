package port

import (
	"context"
	"time"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// AuditFilter narrows audit trail queries.
type AuditFilter struct {
	PrincipalID  string
	ResourceType string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// AuditRepository appends to and reads the tenant-partitioned decision log.
// The log is append-only: no update or delete operations exist.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	MaxSequence(ctx context.Context, tenantID string) (uint64, error)
	CountRange(ctx context.Context, tenantID string, from, to uint64) (int, error)
	ListByTenant(ctx context.Context, tenantID string, filter AuditFilter) ([]domain.AuditEntry, error)
}
