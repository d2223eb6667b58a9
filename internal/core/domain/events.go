package domain

import "time"

// DecisionRecordedEvent represents the payload for access.decision.recorded
// messages fanned out to downstream consumers.
type DecisionRecordedEvent struct {
	EventID       string
	TenantID      string
	Sequence      uint64
	PrincipalID   string
	SessionID     string
	ResourceType  string
	ResourceID    string
	Action        string
	Outcome       DecisionOutcome
	Reason        ReasonCode
	RuleID        string
	PolicyVersion string
	DecidedAt     time.Time
	Metadata      map[string]any
}

// SessionRevokedEvent represents the payload for access.session.revoked
// messages. Peer replicas consume these to apply forced revocation locally.
type SessionRevokedEvent struct {
	EventID     string
	SessionID   string
	TenantID    string
	PrincipalID string
	RevokedAt   time.Time
	RevokedBy   string
	Reason      string
	Metadata    map[string]any
}

// PolicyPublishedEvent represents the payload for access.policy.published
// messages emitted after a successful hot reload.
type PolicyPublishedEvent struct {
	EventID     string
	Industry    IndustryVertical
	Version     string
	PublishedAt time.Time
	PublishedBy string
	RolesTotal  int
	Metadata    map[string]any
}

// TenantLifecycleEvent represents the payload for access.tenant.lifecycle
// messages (provisioned, suspended, cancelled).
type TenantLifecycleEvent struct {
	EventID   string
	TenantID  string
	Industry  IndustryVertical
	Status    TenantStatus
	ChangedAt time.Time
	Metadata  map[string]any
}

// DomainFactEvent carries domain-specific audit facts recorded by business
// modules through the record_event surface (e.g. "estimate approved").
type DomainFactEvent struct {
	EventID     string
	TenantID    string
	PrincipalID string
	Kind        string
	OccurredAt  time.Time
	Payload     map[string]any
}
