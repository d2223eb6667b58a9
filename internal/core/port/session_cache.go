package port

import (
	"context"
	"time"
)

// SessionCache marks revoked sessions so peer replicas observe forced
// revocation before the database commit is visible everywhere.
type SessionCache interface {
	MarkRevoked(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	MarkTenantRevoked(ctx context.Context, tenantID string, at time.Time, ttl time.Duration) error
	TenantRevokedSince(ctx context.Context, tenantID string) (time.Time, bool, error)
}
