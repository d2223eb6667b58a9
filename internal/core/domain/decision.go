package domain

import "time"

// DecisionOutcome is the result of an authorization call.
type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "allow"
	DecisionDeny  DecisionOutcome = "deny"
)

// ReasonCode explains a decision. Deny reasons surfaced to callers carry a
// constraint category at most, never the configured value.
type ReasonCode string

const (
	ReasonGranted         ReasonCode = "granted"
	ReasonCrossTenant     ReasonCode = "cross_tenant_grant"
	ReasonUnauthenticated ReasonCode = "unauthenticated"
	ReasonNoTenantBinding ReasonCode = "no_tenant_binding"
	ReasonTenantInactive  ReasonCode = "tenant_inactive"
	ReasonNoGrant         ReasonCode = "no_grant"
	ReasonConstraint      ReasonCode = "constraint_failed"
	ReasonSensitivity     ReasonCode = "sensitivity_floor"
	ReasonSessionExpired  ReasonCode = "session_expired"
	ReasonSessionRevoked  ReasonCode = "session_revoked"
	ReasonPolicyError     ReasonCode = "policy_error"
)

// AuditSeverity ranks audit entries for alerting. Policy errors are always
// recorded at high severity.
type AuditSeverity string

const (
	SeverityInfo AuditSeverity = "info"
	SeverityWarn AuditSeverity = "warn"
	SeverityHigh AuditSeverity = "high"
)

// Decision is the outcome of an Authorize call together with the matched
// rule chain and the policy version consulted.
type Decision struct {
	Outcome        DecisionOutcome
	Action         string
	ResourceType   string
	RuleID         string
	Reason         ReasonCode
	ConstraintKind ConstraintKind
	PolicyVersion  string
	PolicyError    bool
	CrossTenant    bool
}

// Permits reports whether the decision allows the named action on the
// resource type. An empty resourceType matches any type.
func (d Decision) Permits(action, resourceType string) bool {
	if !d.Allowed() || d.Action != action {
		return false
	}
	return resourceType == "" || d.ResourceType == "" || d.ResourceType == resourceType
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Outcome == DecisionAllow
}

// Severity derives the audit severity for the decision.
func (d Decision) Severity() AuditSeverity {
	switch {
	case d.PolicyError:
		return SeverityHigh
	case d.Reason == ReasonNoTenantBinding:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// AuditEntry is the immutable decision/mutation record. Sequence numbers
// are strictly monotonic per tenant and never reused; gaps indicate
// tampering or loss.
type AuditEntry struct {
	ID            string
	TenantID      string
	Sequence      uint64
	At            time.Time
	PrincipalID   string
	SessionID     string
	ResourceType  string
	ResourceID    string
	Action        string
	Outcome       DecisionOutcome
	RuleID        string
	Reason        ReasonCode
	PolicyVersion string
	Severity      AuditSeverity
	RequestID     string
	Metadata      map[string]any
}
