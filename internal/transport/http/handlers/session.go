package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// SessionHandler exposes session lifecycle endpoints.
type SessionHandler struct {
	sessions   *usecase.SessionService
	store      port.SessionRepository
	adminRoles []string
}

// NewSessionHandler builds the session handler. The repository is used for
// administrative listings that do not go through lifecycle logic; the admin
// roles gate bulk revocation.
func NewSessionHandler(sessions *usecase.SessionService, store port.SessionRepository, adminRoles []string) *SessionHandler {
	return &SessionHandler{sessions: sessions, store: store, adminRoles: adminRoles}
}

// RegisterRoutes wires session endpoints into the provided group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.Create)
	r.GET("/:id", h.Get)
	r.POST("/:id/heartbeat", h.Heartbeat)
	r.DELETE("/:id", h.Revoke)
	r.POST("/revoke", h.BulkRevoke)
}

var sessionErrorCases = []ErrorCase{
	{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
	{Err: usecase.ErrSessionExpired, Status: http.StatusGone, Message: "session expired"},
	{Err: usecase.ErrSessionRevoked, Status: http.StatusGone, Message: "session revoked"},
}

// Create opens a session for an authenticated principal.
func (h *SessionHandler) Create(c *gin.Context) {
	var req SessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	var ip *string
	if clientIP := c.ClientIP(); clientIP != "" {
		ip = &clientIP
	}

	session, err := h.sessions.Create(c.Request.Context(), usecase.CreateSessionInput{
		PrincipalID: req.PrincipalID,
		TenantID:    req.TenantID,
		Role:        req.Role,
		MFA:         domain.MFALevel(req.MFALevel),
		DeviceTrust: domain.DeviceTrustLevel(req.DeviceTrust),
		Region:      req.Region,
		IP:          ip,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "failed to create session"))
		return
	}

	c.JSON(http.StatusCreated, newSessionResponse(*session))
}

// Get returns the session's current state.
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to load session")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(*session))
}

// Heartbeat refreshes session activity and returns the updated row.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	var ip *string
	if clientIP := c.ClientIP(); clientIP != "" {
		ip = &clientIP
	}

	session, err := h.sessions.Heartbeat(c.Request.Context(), c.Param("id"), ip)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(*session))
}

// Revoke terminates a single session.
func (h *SessionHandler) Revoke(c *gin.Context) {
	var req SessionRevokeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
			return
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = usecase.RevokeReasonLogout
	}

	err := h.sessions.Revoke(c.Request.Context(), c.Param("id"), revokedBy(c), reason)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session revoked"})
}

// BulkRevoke force-terminates every active session for a principal or a
// whole tenant. Used on role changes and during incident response.
func (h *SessionHandler) BulkRevoke(c *gin.Context) {
	var req BulkRevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "tenant_id is required"))
		return
	}

	// The target tenant comes from the body, so the route guard cannot
	// cover it. Non-admins see the same 404 as a missing tenant.
	if !middleware.HasTenantRole(c, req.TenantID, h.adminRoles) {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "tenant not found"))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = usecase.RevokeReasonSecurityIncident
	}

	var (
		count int
		err   error
	)
	if req.PrincipalID != "" {
		count, err = h.sessions.RevokeAllForPrincipal(c.Request.Context(), req.PrincipalID, req.TenantID, revokedBy(c), reason)
	} else {
		count, err = h.sessions.RevokeAllForTenant(c.Request.Context(), req.TenantID, revokedBy(c), reason)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, BulkRevokeResponse{Revoked: count})
}

// RevokeForTenant force-terminates every active session in the tenant.
// Used when suspending a tenant or during incident response.
func (h *SessionHandler) RevokeForTenant(c *gin.Context) {
	reason := c.Query("reason")
	if reason == "" {
		reason = usecase.RevokeReasonSecurityIncident
	}

	count, err := h.sessions.RevokeAllForTenant(c.Request.Context(), c.Param("id"), revokedBy(c), reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	c.JSON(http.StatusOK, BulkRevokeResponse{Revoked: count})
}

// ListForTenant returns the active sessions for a tenant.
func (h *SessionHandler) ListForTenant(c *gin.Context) {
	sessions, err := h.store.ListActiveByTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	views := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionResponse(s))
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: views, Count: len(views)})
}

func revokedBy(c *gin.Context) string {
	if resolved, ok := middleware.ResolvedPrincipal(c); ok {
		return resolved.Principal.ID
	}
	return ""
}
