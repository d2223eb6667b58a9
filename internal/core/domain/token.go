package domain

import "time"

// TokenClaims are the verified claims of a bearer token issued by the
// authentication front door. The engine only consumes tokens; it never
// issues them.
type TokenClaims struct {
	PrincipalID string
	SessionID   string
	Kind        PrincipalKind
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the token is past its expiry at the given moment.
func (c TokenClaims) Expired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}
