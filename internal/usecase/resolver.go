package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

// ResolvedPrincipal pairs the authenticated principal with the session its
// token is bound to.
type ResolvedPrincipal struct {
	Principal domain.Principal
	SessionID string
}

// PrincipalResolver turns a bearer token into a principal with its tenant
// bindings. Resolution succeeds even when the caller targets a tenant
// outside the binding set: the evaluator denies it, keeping attempted
// cross-tenant access on the audit trail.
type PrincipalResolver struct {
	verifier   port.TokenVerifier
	principals port.PrincipalRepository
	sessions   *SessionService
	logger     *zap.Logger
	now        func() time.Time
}

// NewPrincipalResolver constructs a PrincipalResolver.
func NewPrincipalResolver(verifier port.TokenVerifier, principals port.PrincipalRepository, sessions *SessionService, logger *zap.Logger) *PrincipalResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrincipalResolver{
		verifier:   verifier,
		principals: principals,
		sessions:   sessions,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock injects a custom clock (primarily for testing).
func (r *PrincipalResolver) WithClock(now func() time.Time) *PrincipalResolver {
	if now != nil {
		r.now = now
	}
	return r
}

// Resolve verifies the token, loads the principal's active bindings, and
// refreshes session activity as a side effect.
func (r *PrincipalResolver) Resolve(ctx context.Context, bearerToken string, ip *string) (*ResolvedPrincipal, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := r.verifier.Verify(ctx, bearerToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, "token verification failed")
	}
	if claims.Expired(r.now().UTC()) {
		return nil, ErrUnauthenticated
	}

	principal, err := r.principals.GetByID(ctx, claims.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}

	bindings, err := r.principals.ListBindings(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("load tenant bindings: %w", err)
	}
	active := bindings[:0]
	for _, b := range bindings {
		if b.Active() {
			active = append(active, b)
		}
	}
	principal.Bindings = active

	if claims.SessionID != "" && r.sessions != nil {
		// Heartbeat refuses expired, idle, or revoked sessions, so a dead
		// session never has its activity window reopened here. Refresh is
		// best effort; the evaluator still checks liveness per request.
		if _, err := r.sessions.Heartbeat(ctx, claims.SessionID, ip); err != nil {
			r.logger.Warn("session heartbeat failed",
				zap.String("session_id", claims.SessionID),
				zap.Error(err),
			)
		}
	}

	return &ResolvedPrincipal{Principal: *principal, SessionID: claims.SessionID}, nil
}
