package port

import (
	"context"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// SessionRepository handles session persistence. Terminate is a
// compare-and-set: it only succeeds while the row is still Active, so a
// revocation racing a request cannot be observed out of order.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, ip *string) error
	Terminate(ctx context.Context, sessionID string, reason string) (bool, error)
	TerminateAllForPrincipal(ctx context.Context, principalID, tenantID, reason string) (int, error)
	TerminateAllForTenant(ctx context.Context, tenantID, reason string) (int, error)
	ListActiveByTenant(ctx context.Context, tenantID string) ([]domain.Session, error)
}
