package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
)

// ErrUnauthenticated indicates no valid principal accompanies the request.
var ErrUnauthenticated = errors.New("unauthenticated")

// AuthorizeRequest is a single authorization question: may this principal
// perform this action on this resource in this tenant, given the session's
// current context?
type AuthorizeRequest struct {
	Principal *domain.Principal
	TenantID  string
	Resource  domain.Resource
	Action    string
	SessionID string
	RequestID string
}

// EvaluatorConfig tunes the evaluator's audit behaviour.
type EvaluatorConfig struct {
	// SyncSensitivityThreshold is the sensitivity level at or above which
	// a Deny blocks until its audit entry is durably written. Ordinary
	// low-risk denials audit asynchronously so the recorder never becomes
	// a liveness bottleneck for them.
	SyncSensitivityThreshold domain.SensitivityLevel
}

// AccessEvaluator computes Allow/Deny decisions. Every path fails closed:
// missing snapshots, malformed policies, and infrastructure errors all
// produce a Deny, with policy faults audited at high severity.
type AccessEvaluator struct {
	store    *PolicyStore
	sessions *SessionService
	tenants  port.TenantRepository
	audit    *AuditRecorder
	cfg      EvaluatorConfig
	logger   *zap.Logger
	now      func() time.Time

	onDecision func(outcome domain.DecisionOutcome, reason domain.ReasonCode, elapsed time.Duration)
}

// NewAccessEvaluator constructs an AccessEvaluator.
func NewAccessEvaluator(store *PolicyStore, sessions *SessionService, tenants port.TenantRepository, audit *AuditRecorder, cfg EvaluatorConfig, logger *zap.Logger) *AccessEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SyncSensitivityThreshold == 0 {
		cfg.SyncSensitivityThreshold = domain.SensitivityLevel(5)
	}
	return &AccessEvaluator{
		store:    store,
		sessions: sessions,
		tenants:  tenants,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock injects a custom clock (primarily for testing).
func (e *AccessEvaluator) WithClock(now func() time.Time) *AccessEvaluator {
	if now != nil {
		e.now = now
	}
	return e
}

// WithDecisionObserver registers a metrics callback invoked once per decision.
func (e *AccessEvaluator) WithDecisionObserver(fn func(domain.DecisionOutcome, domain.ReasonCode, time.Duration)) *AccessEvaluator {
	e.onDecision = fn
	return e
}

// Authorize evaluates the request and records the decision. The session's
// context is re-resolved on every call rather than cached, so forced
// revocation invalidates in-flight authorization immediately.
func (e *AccessEvaluator) Authorize(ctx context.Context, req AuthorizeRequest) domain.Decision {
	started := e.now()
	decision := e.evaluate(ctx, req)
	decision.Action = req.Action
	decision.ResourceType = req.Resource.Type

	elapsed := e.now().Sub(started)
	if e.onDecision != nil {
		e.onDecision(decision.Outcome, decision.Reason, elapsed)
	}

	e.record(ctx, req, decision)
	return decision
}

func (e *AccessEvaluator) evaluate(ctx context.Context, req AuthorizeRequest) domain.Decision {
	snapshot := e.store.Snapshot()
	deny := func(reason domain.ReasonCode) domain.Decision {
		d := domain.Decision{Outcome: domain.DecisionDeny, Reason: reason}
		if snapshot != nil {
			d.PolicyVersion = snapshot.Fingerprint()
		}
		return d
	}

	if req.Principal == nil || req.Principal.ID == "" {
		return deny(domain.ReasonUnauthenticated)
	}

	// Session liveness first: a terminated or idle session denies before
	// any grant is consulted.
	session, err := e.sessions.Get(ctx, req.SessionID)
	switch {
	case errors.Is(err, ErrSessionExpired):
		return deny(domain.ReasonSessionExpired)
	case errors.Is(err, ErrSessionRevoked):
		return deny(domain.ReasonSessionRevoked)
	case errors.Is(err, ErrSessionNotFound):
		return deny(domain.ReasonUnauthenticated)
	case err != nil:
		return e.policyFault(snapshot, "load session", err)
	}
	if session.PrincipalID != req.Principal.ID {
		return deny(domain.ReasonUnauthenticated)
	}

	tenant, err := e.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Indistinguishable from a missing binding so the response
			// never confirms whether the tenant exists.
			return deny(domain.ReasonNoTenantBinding)
		}
		return e.policyFault(snapshot, "load tenant", err)
	}
	if !tenant.IsActive() {
		return deny(domain.ReasonTenantInactive)
	}

	if snapshot == nil {
		return e.policyFault(snapshot, "authorize", ErrNoPolicySnapshot)
	}

	rc := session.RequestContext(e.now().UTC(), req.RequestID)

	binding := req.Principal.BindingFor(req.TenantID)
	if binding == nil {
		// The only path across a missing binding is an explicit API
		// partner cross-tenant grant.
		if req.Principal.Kind == domain.PrincipalAPIPartner {
			if d, ok := e.crossTenantDecision(snapshot, req, rc); ok {
				return d
			}
		}
		return deny(domain.ReasonNoTenantBinding)
	}

	grants, err := snapshot.EffectiveGrants(binding.RoleNames()...)
	if err != nil {
		return e.policyFault(snapshot, "effective grants", err)
	}

	return e.decide(snapshot, grants, req, rc, false)
}

// crossTenantDecision evaluates explicit cross-tenant grants held through
// any of an API partner's bindings.
func (e *AccessEvaluator) crossTenantDecision(snapshot *PolicySnapshot, req AuthorizeRequest, rc domain.RequestContext) (domain.Decision, bool) {
	var grants []domain.Grant
	for _, b := range req.Principal.Bindings {
		if !b.Active() {
			continue
		}
		roleGrants, err := snapshot.EffectiveGrants(b.RoleNames()...)
		if err != nil {
			continue
		}
		for _, g := range roleGrants {
			if g.CrossTenant {
				grants = append(grants, g)
			}
		}
	}
	if len(grants) == 0 {
		return domain.Decision{}, false
	}
	d := e.decide(snapshot, grants, req, rc, true)
	if !d.Allowed() {
		return domain.Decision{}, false
	}
	return d, true
}

// decide filters grants to the requested (resource type, action) pair,
// checks each grant's conjunctive constraints, and applies the sensitivity
// floor, which no role grant overrides.
func (e *AccessEvaluator) decide(snapshot *PolicySnapshot, grants []domain.Grant, req AuthorizeRequest, rc domain.RequestContext, crossTenant bool) domain.Decision {
	decision := domain.Decision{
		Outcome:       domain.DecisionDeny,
		Reason:        domain.ReasonNoGrant,
		PolicyVersion: snapshot.Fingerprint(),
		CrossTenant:   crossTenant,
	}

	var matched *domain.Grant
	var failedKind domain.ConstraintKind
	sawCandidate := false

	for i := range grants {
		grant := grants[i]
		if grant.ResourceType != req.Resource.Type || grant.Action != req.Action {
			continue
		}
		sawCandidate = true

		qualifies := true
		for _, constraint := range grant.Constraints {
			if !constraint.Satisfied(rc, req.Resource) {
				qualifies = false
				if failedKind == "" {
					failedKind = constraint.Kind
				}
				break
			}
		}
		if qualifies {
			matched = &grant
			break
		}
	}

	// Sensitivity floor: checked after grant matching so a constraint
	// failure is still reported with its category, but enforced even when
	// a grant qualifies.
	if req.Resource.Sensitivity.Valid() {
		if rc.MFA < req.Resource.Sensitivity.MinMFA() || rc.DeviceTrust < req.Resource.Sensitivity.MinDeviceTrust() {
			decision.Reason = domain.ReasonSensitivity
			decision.ConstraintKind = domain.ConstraintMFALevel
			return decision
		}
	}

	switch {
	case matched != nil:
		decision.Outcome = domain.DecisionAllow
		decision.RuleID = matched.ID
		decision.Reason = domain.ReasonGranted
		if crossTenant {
			decision.Reason = domain.ReasonCrossTenant
		}
	case sawCandidate && failedKind != "":
		// A grant existed but a constraint failed: report the category
		// only, never the configured value.
		decision.Reason = domain.ReasonConstraint
		decision.ConstraintKind = failedKind
	}

	return decision
}

// policyFault converts an evaluator error into a fail-closed Deny tagged as
// a policy error. Never surfaced to business callers beyond the generic
// denial; always audited at high severity.
func (e *AccessEvaluator) policyFault(snapshot *PolicySnapshot, op string, err error) domain.Decision {
	e.logger.Error("policy evaluation fault", zap.String("op", op), zap.Error(err))
	d := domain.Decision{
		Outcome:     domain.DecisionDeny,
		Reason:      domain.ReasonPolicyError,
		PolicyError: true,
	}
	if snapshot != nil {
		d.PolicyVersion = snapshot.Fingerprint()
	}
	return d
}

func (e *AccessEvaluator) record(ctx context.Context, req AuthorizeRequest, decision domain.Decision) {
	if e.audit == nil {
		return
	}

	entry := domain.AuditEntry{
		TenantID:      req.TenantID,
		SessionID:     req.SessionID,
		ResourceType:  req.Resource.Type,
		ResourceID:    req.Resource.ID,
		Action:        req.Action,
		Outcome:       decision.Outcome,
		RuleID:        decision.RuleID,
		Reason:        decision.Reason,
		PolicyVersion: decision.PolicyVersion,
		Severity:      decision.Severity(),
		RequestID:     req.RequestID,
	}
	if req.Principal != nil {
		entry.PrincipalID = req.Principal.ID
	}
	if entry.TenantID == "" {
		entry.TenantID = req.Resource.TenantID
	}

	// Denials on sensitive actions block until the audit write is durable;
	// everything else records asynchronously.
	if decision.Outcome == domain.DecisionDeny && req.Resource.Sensitivity >= e.cfg.SyncSensitivityThreshold {
		if err := e.audit.RecordSync(ctx, entry); err != nil {
			e.logger.Error("synchronous audit write failed", zap.Error(err))
		}
		return
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.Error("audit record failed", zap.Error(err))
	}
}
