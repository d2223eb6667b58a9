package domain

import "time"

// SessionState is the session lifecycle state. There are exactly two:
// Active and Terminated. Idle timeout, explicit logout, and forced
// revocation all land in Terminated.
type SessionState string

const (
	SessionActive     SessionState = "active"
	SessionTerminated SessionState = "terminated"
)

// Session tracks an authenticated principal's presence in a tenant together
// with the contextual attributes the evaluator consumes (MFA, device trust,
// region).
type Session struct {
	ID              string
	PrincipalID     string
	TenantID        string
	Role            string
	State           SessionState
	MFA             MFALevel
	DeviceTrust     DeviceTrustLevel
	Region          string
	IPFirst         *string
	IPLast          *string
	CreatedAt       time.Time
	LastActivityAt  time.Time
	ExpiresAt       time.Time
	TerminatedAt    *time.Time
	TerminateReason *string
}

// IsLive reports whether the session may authorize requests at the supplied
// moment given its role's idle timeout.
func (s Session) IsLive(at time.Time, idleTimeout time.Duration) bool {
	if s.State != SessionActive {
		return false
	}
	if !s.ExpiresAt.After(at) {
		return false
	}
	if idleTimeout > 0 && at.Sub(s.LastActivityAt) > idleTimeout {
		return false
	}
	return true
}

// Expired reports whether the session aged out rather than being revoked.
func (s Session) Expired(at time.Time, idleTimeout time.Duration) bool {
	if s.State != SessionActive {
		return false
	}
	if !s.ExpiresAt.After(at) {
		return true
	}
	return idleTimeout > 0 && at.Sub(s.LastActivityAt) > idleTimeout
}

// Touch refreshes activity metadata when an authorized request is served.
func (s *Session) Touch(at time.Time, ip *string) {
	s.LastActivityAt = at
	if ip != nil {
		ipCopy := *ip
		if s.IPFirst == nil {
			s.IPFirst = &ipCopy
		}
		s.IPLast = &ipCopy
	}
}

// Terminate flips the session to Terminated. Returns true when the session
// changed state, false when it was already terminated (the compare half of
// the CAS the repository enforces).
func (s *Session) Terminate(at time.Time, reason string) bool {
	if s.State == SessionTerminated {
		return false
	}
	s.State = SessionTerminated
	s.TerminatedAt = &at
	s.TerminateReason = &reason
	return true
}

// RequestContext derives the evaluator context from the session's current
// attributes.
func (s Session) RequestContext(at time.Time, requestID string) RequestContext {
	return RequestContext{
		SessionID:   s.ID,
		MFA:         s.MFA,
		DeviceTrust: s.DeviceTrust,
		Region:      s.Region,
		At:          at,
		RequestID:   requestID,
	}
}
