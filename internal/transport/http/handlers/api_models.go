package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse describes the readiness payload with per-dependency checks.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ResourceRef describes the resource an authorization question targets.
type ResourceRef struct {
	Type               string  `json:"type" binding:"required"`
	ID                 string  `json:"id"`
	OwnerID            *string `json:"owner_id,omitempty"`
	Sensitivity        uint8   `json:"sensitivity"`
	MonetaryValueCents *int64  `json:"monetary_value_cents,omitempty"`
}

// AuthorizeRequest defines the payload for the authorize endpoint.
type AuthorizeRequest struct {
	TenantID string      `json:"tenant_id" binding:"required"`
	Action   string      `json:"action" binding:"required"`
	Resource ResourceRef `json:"resource" binding:"required"`
}

// DecisionResponse describes the outcome of an authorization question.
type DecisionResponse struct {
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason"`
	RuleID         string `json:"rule_id,omitempty"`
	ConstraintKind string `json:"constraint_kind,omitempty"`
	PolicyVersion  string `json:"policy_version,omitempty"`
	CrossTenant    bool   `json:"cross_tenant,omitempty"`
}

func newDecisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		Outcome:        string(d.Outcome),
		Reason:         string(d.Reason),
		RuleID:         d.RuleID,
		ConstraintKind: string(d.ConstraintKind),
		PolicyVersion:  d.PolicyVersion,
		CrossTenant:    d.CrossTenant,
	}
}

// RecordEventRequest defines the payload for appending a domain fact.
type RecordEventRequest struct {
	TenantID string         `json:"tenant_id" binding:"required"`
	Kind     string         `json:"kind" binding:"required"`
	Payload  map[string]any `json:"payload"`
}

// SessionCreateRequest defines the payload for opening a session.
type SessionCreateRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
	TenantID    string `json:"tenant_id" binding:"required"`
	Role        string `json:"role" binding:"required"`
	MFALevel    uint8  `json:"mfa_level"`
	DeviceTrust uint8  `json:"device_trust"`
	Region      string `json:"region"`
	TTLSeconds  int64  `json:"ttl_seconds"`
}

// SessionResponse provides a view of a session row.
type SessionResponse struct {
	ID             string     `json:"id"`
	PrincipalID    string     `json:"principal_id"`
	TenantID       string     `json:"tenant_id"`
	Role           string     `json:"role"`
	State          string     `json:"state"`
	MFALevel       uint8      `json:"mfa_level"`
	DeviceTrust    uint8      `json:"device_trust"`
	Region         string     `json:"region,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	TerminatedAt   *time.Time `json:"terminated_at,omitempty"`
}

func newSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:             s.ID,
		PrincipalID:    s.PrincipalID,
		TenantID:       s.TenantID,
		Role:           s.Role,
		State:          string(s.State),
		MFALevel:       uint8(s.MFA),
		DeviceTrust:    uint8(s.DeviceTrust),
		Region:         s.Region,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		TerminatedAt:   s.TerminatedAt,
	}
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

// SessionRevokeRequest defines the payload for revoking a single session.
type SessionRevokeRequest struct {
	Reason string `json:"reason"`
}

// BulkRevokeRequest defines the payload for forced bulk revocation.
type BulkRevokeRequest struct {
	PrincipalID string `json:"principal_id"`
	TenantID    string `json:"tenant_id"`
	Reason      string `json:"reason"`
}

// BulkRevokeResponse reports how many sessions a bulk revocation terminated.
type BulkRevokeResponse struct {
	Revoked int `json:"revoked"`
}

// PolicyReloadRequest defines the payload for publishing a policy version.
type PolicyReloadRequest struct {
	Industry string `json:"industry" binding:"required"`
	Version  string `json:"version" binding:"required"`
}

// PolicyReloadResponse reports validation diagnostics for a reload attempt.
type PolicyReloadResponse struct {
	Industry      string   `json:"industry"`
	Version       string   `json:"version"`
	Success       bool     `json:"success"`
	Cycle         []string `json:"cycle,omitempty"`
	UnknownRoles  []string `json:"unknown_roles,omitempty"`
	InvalidGrants []string `json:"invalid_grants,omitempty"`
	Conflicts     []string `json:"conflicts,omitempty"`
}

// PolicyStatusView summarises a stored policy version.
type PolicyStatusView struct {
	Industry    string    `json:"industry"`
	Version     string    `json:"version"`
	Current     bool      `json:"current"`
	PublishedAt time.Time `json:"published_at"`
}

// PolicyStatusListResponse wraps the administrative policy listing.
type PolicyStatusListResponse struct {
	Policies []PolicyStatusView `json:"policies"`
}

// AuditEntryView is the read model for a single audit record.
type AuditEntryView struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Sequence      uint64         `json:"sequence"`
	At            time.Time      `json:"at"`
	PrincipalID   string         `json:"principal_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	ResourceType  string         `json:"resource_type,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Action        string         `json:"action,omitempty"`
	Outcome       string         `json:"outcome"`
	RuleID        string         `json:"rule_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	PolicyVersion string         `json:"policy_version,omitempty"`
	Severity      string         `json:"severity"`
	RequestID     string         `json:"request_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func newAuditEntryView(e domain.AuditEntry) AuditEntryView {
	return AuditEntryView{
		ID:            e.ID,
		TenantID:      e.TenantID,
		Sequence:      e.Sequence,
		At:            e.At,
		PrincipalID:   e.PrincipalID,
		SessionID:     e.SessionID,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Action:        e.Action,
		Outcome:       string(e.Outcome),
		RuleID:        e.RuleID,
		Reason:        string(e.Reason),
		PolicyVersion: e.PolicyVersion,
		Severity:      string(e.Severity),
		RequestID:     e.RequestID,
		Metadata:      e.Metadata,
	}
}

// AuditListResponse wraps an audit trail page.
type AuditListResponse struct {
	Entries []AuditEntryView `json:"entries"`
	Count   int              `json:"count"`
}

// AuditVerifyResponse reports the result of a sequence continuity check.
type AuditVerifyResponse struct {
	TenantID string `json:"tenant_id"`
	Missing  int    `json:"missing"`
	Intact   bool   `json:"intact"`
}

// TenantProvisionRequest defines the payload for provisioning a tenant.
type TenantProvisionRequest struct {
	Name     string `json:"name" binding:"required"`
	Industry string `json:"industry" binding:"required"`
	Plan     string `json:"plan"`
}

// TenantResponse provides a view of a tenant row.
type TenantResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Industry    string     `json:"industry"`
	Plan        string     `json:"plan"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func newTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:          t.ID,
		Name:        t.Name,
		Industry:    string(t.Industry),
		Plan:        string(t.Plan),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		CancelledAt: t.CancelledAt,
	}
}
