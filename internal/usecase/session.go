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

const (
	// RevokeReasonLogout marks an explicit logout.
	RevokeReasonLogout = "logout"
	// RevokeReasonRoleChanged marks forced revocation after a role change.
	RevokeReasonRoleChanged = "role_changed"
	// RevokeReasonSecurityIncident marks forced revocation during incident response.
	RevokeReasonSecurityIncident = "security_incident"
	// RevokeReasonTenantSuspended marks bulk revocation when a tenant is suspended.
	RevokeReasonTenantSuspended = "tenant_suspended"
)

var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session aged out or idled past its timeout.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked indicates the session was terminated by revocation.
	ErrSessionRevoked = errors.New("session revoked")
)

// SessionPolicy resolves role-dependent session parameters. Idle timeouts
// are configuration loaded at startup, not constants.
type SessionPolicy struct {
	DefaultTTL         time.Duration
	DefaultIdleTimeout time.Duration
	IdleTimeouts       map[string]time.Duration
}

// IdleTimeoutFor returns the idle timeout for the named role.
func (p SessionPolicy) IdleTimeoutFor(role string) time.Duration {
	if timeout, ok := p.IdleTimeouts[strings.ToLower(strings.TrimSpace(role))]; ok {
		return timeout
	}
	return p.DefaultIdleTimeout
}

// CreateSessionInput captures the payload the authentication front door
// supplies when establishing a session.
type CreateSessionInput struct {
	PrincipalID string
	TenantID    string
	Role        string
	MFA         domain.MFALevel
	DeviceTrust domain.DeviceTrustLevel
	Region      string
	IP          *string
	TTL         time.Duration
}

// SessionService manages session lifecycle: Active until expiry, idle
// timeout, explicit logout, or forced revocation, then Terminated.
type SessionService struct {
	sessions  port.SessionRepository
	cache     port.SessionCache
	audit     *AuditRecorder
	publisher port.EventPublisher
	policy    SessionPolicy
	logger    *zap.Logger
	now       func() time.Time

	revokeMarkTTL time.Duration
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, audit *AuditRecorder, publisher port.EventPublisher, policy SessionPolicy, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.DefaultTTL <= 0 {
		policy.DefaultTTL = 8 * time.Hour
	}
	if policy.DefaultIdleTimeout <= 0 {
		policy.DefaultIdleTimeout = 30 * time.Minute
	}
	return &SessionService{
		sessions:  sessions,
		audit:     audit,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSessionCache attaches the cross-replica revocation cache.
func (s *SessionService) WithSessionCache(cache port.SessionCache, markTTL time.Duration) *SessionService {
	s.cache = cache
	if markTTL <= 0 {
		markTTL = s.policy.DefaultTTL
	}
	s.revokeMarkTTL = markTTL
	return s
}

// WithClock injects a custom clock (primarily for testing).
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// Create establishes a new Active session.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*domain.Session, error) {
	principalID := strings.TrimSpace(input.PrincipalID)
	if principalID == "" {
		return nil, fmt.Errorf("principal id is required")
	}
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		return nil, fmt.Errorf("role is required")
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.policy.DefaultTTL
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:             uuid.NewString(),
		PrincipalID:    principalID,
		TenantID:       tenantID,
		Role:           role,
		State:          domain.SessionActive,
		MFA:            input.MFA,
		DeviceTrust:    input.DeviceTrust,
		Region:         strings.TrimSpace(input.Region),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
	}
	if input.IP != nil {
		session.Touch(now, input.IP)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &session, nil
}

// Get loads a session and classifies its liveness. Expired-but-active rows
// are reported as ErrSessionExpired; terminated rows as ErrSessionRevoked.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	// The cache markers may be visible before the database flip; honor
	// them so forced revocation takes effect across replicas immediately.
	if s.cache != nil {
		revoked, err := s.cache.IsRevoked(ctx, sessionID)
		if err != nil {
			s.logger.Warn("session revocation cache check failed", zap.Error(err))
		} else if revoked {
			return session, ErrSessionRevoked
		}

		// A tenant-wide revocation covers every session opened at or
		// before the cutoff.
		cutoff, marked, err := s.cache.TenantRevokedSince(ctx, session.TenantID)
		if err != nil {
			s.logger.Warn("tenant revocation cache check failed", zap.Error(err))
		} else if marked && !session.CreatedAt.After(cutoff) {
			return session, ErrSessionRevoked
		}
	}

	now := s.now().UTC()
	idle := s.policy.IdleTimeoutFor(session.Role)
	switch {
	case session.State == domain.SessionTerminated:
		return session, ErrSessionRevoked
	case session.Expired(now, idle):
		return session, ErrSessionExpired
	}
	return session, nil
}

// Heartbeat refreshes session activity for an authorized request.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string, ip *string) (*domain.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return session, err
	}

	if err := s.sessions.Touch(ctx, sessionID, ip); err != nil {
		return session, fmt.Errorf("touch session: %w", err)
	}
	session.Touch(s.now().UTC(), ip)
	return session, nil
}

// Revoke terminates a single session. The revocation audit entry is written
// durably before the state flip becomes visible, closing the window where a
// request could observe Active after the revocation is on record.
func (s *SessionService) Revoke(ctx context.Context, sessionID, revokedBy, reason string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}
	if session.State == domain.SessionTerminated {
		return nil
	}

	now := s.now().UTC()
	if s.audit != nil {
		entry := domain.AuditEntry{
			TenantID:    session.TenantID,
			PrincipalID: session.PrincipalID,
			SessionID:   session.ID,
			Action:      "session.revoke",
			Outcome:     domain.DecisionAllow,
			Reason:      domain.ReasonSessionRevoked,
			Severity:    domain.SeverityWarn,
			At:          now,
			Metadata: map[string]any{
				"revoked_by": revokedBy,
				"reason":     reason,
			},
		}
		if err := s.audit.RecordSync(ctx, entry); err != nil {
			return fmt.Errorf("audit session revocation: %w", err)
		}
	}

	flipped, err := s.sessions.Terminate(ctx, sessionID, reason)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.MarkRevoked(ctx, sessionID, s.revokeMarkTTL); err != nil {
			s.logger.Warn("mark session revoked in cache failed", zap.Error(err))
		}
	}

	if flipped && s.publisher != nil {
		event := domain.SessionRevokedEvent{
			EventID:     uuid.NewString(),
			SessionID:   session.ID,
			TenantID:    session.TenantID,
			PrincipalID: session.PrincipalID,
			RevokedAt:   now,
			RevokedBy:   revokedBy,
			Reason:      reason,
		}
		if err := s.publisher.PublishSessionRevoked(ctx, event); err != nil {
			s.logger.Warn("publish session revoked failed", zap.Error(err))
		}
	}

	return nil
}

// RevokeAllForPrincipal force-terminates every session the principal holds
// in the tenant, e.g. after a role change.
func (s *SessionService) RevokeAllForPrincipal(ctx context.Context, principalID, tenantID, revokedBy, reason string) (int, error) {
	// As with single-session Revoke, the audit entry lands durably before
	// any session flips state.
	if s.audit != nil {
		entry := domain.AuditEntry{
			TenantID:    tenantID,
			PrincipalID: principalID,
			Action:      "session.revoke_all_principal",
			Outcome:     domain.DecisionAllow,
			Reason:      domain.ReasonSessionRevoked,
			Severity:    domain.SeverityWarn,
			At:          s.now().UTC(),
			Metadata: map[string]any{
				"revoked_by": revokedBy,
				"reason":     reason,
			},
		}
		if err := s.audit.RecordSync(ctx, entry); err != nil {
			return 0, fmt.Errorf("audit bulk revocation: %w", err)
		}
	}

	count, err := s.sessions.TerminateAllForPrincipal(ctx, principalID, tenantID, reason)
	if err != nil {
		return 0, fmt.Errorf("terminate sessions for principal: %w", err)
	}

	s.logger.Info("revoked principal sessions",
		zap.String("principal_id", principalID),
		zap.String("tenant_id", tenantID),
		zap.Int("sessions_revoked", count),
	)

	return count, nil
}

// RevokeAllForTenant force-terminates every active session in the tenant
// (suspension, security incident). The tenant-wide cache mark lets peer
// replicas reject in-flight sessions before their local state catches up.
func (s *SessionService) RevokeAllForTenant(ctx context.Context, tenantID, revokedBy, reason string) (int, error) {
	now := s.now().UTC()

	// Durable audit first, then the cache mark and database sweep. A
	// revocation that takes effect is always on record.
	if s.audit != nil {
		entry := domain.AuditEntry{
			TenantID: tenantID,
			Action:   "session.revoke_all_tenant",
			Outcome:  domain.DecisionAllow,
			Reason:   domain.ReasonSessionRevoked,
			Severity: domain.SeverityHigh,
			At:       now,
			Metadata: map[string]any{
				"revoked_by": revokedBy,
				"reason":     reason,
			},
		}
		if err := s.audit.RecordSync(ctx, entry); err != nil {
			return 0, fmt.Errorf("audit tenant revocation: %w", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.MarkTenantRevoked(ctx, tenantID, now, s.revokeMarkTTL); err != nil {
			s.logger.Warn("mark tenant revoked in cache failed", zap.Error(err))
		}
	}

	count, err := s.sessions.TerminateAllForTenant(ctx, tenantID, reason)
	if err != nil {
		return 0, fmt.Errorf("terminate sessions for tenant: %w", err)
	}

	s.logger.Info("revoked tenant sessions",
		zap.String("tenant_id", tenantID),
		zap.Int("sessions_revoked", count),
	)

	return count, nil
}

// ApplyRemoteRevocation terminates a session revoked by a peer replica.
// Consumed from the message bus; idempotent.
func (s *SessionService) ApplyRemoteRevocation(ctx context.Context, event domain.SessionRevokedEvent) error {
	if s.cache != nil {
		if err := s.cache.MarkRevoked(ctx, event.SessionID, s.revokeMarkTTL); err != nil {
			s.logger.Warn("mark remote revocation in cache failed", zap.Error(err))
		}
	}
	if _, err := s.sessions.Terminate(ctx, event.SessionID, event.Reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("apply remote revocation: %w", err)
	}
	return nil
}
