package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
	"github.com/gin-gonic/gin"
)

const (
	// PrincipalKey is the context key for the resolved principal.
	PrincipalKey = "principal"
	// SessionIDKey is the context key for the session bound to the bearer token.
	SessionIDKey = "session_id"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header and resolves the principal
// with its tenant bindings.
func RequireAuth(resolver *usecase.PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		if !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: must start with 'Bearer'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing bearer token"))
			return
		}

		var ip *string
		if clientIP := c.ClientIP(); clientIP != "" {
			ip = &clientIP
		}

		resolved, err := resolver.Resolve(c.Request.Context(), token, ip)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid or expired credentials"))
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		// Store principal information in context
		c.Set(PrincipalKey, resolved)
		c.Set(PrincipalIDKey, resolved.Principal.ID)
		if resolved.SessionID != "" {
			c.Set(SessionIDKey, resolved.SessionID)
		}

		// Update request context with principal ID
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.PrincipalID = resolved.Principal.ID
		}

		c.Next()
	}
}

// ResolvedPrincipal retrieves the authenticated principal from the context.
func ResolvedPrincipal(c *gin.Context) (*usecase.ResolvedPrincipal, bool) {
	val, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}

	resolved, ok := val.(*usecase.ResolvedPrincipal)
	if !ok || resolved == nil {
		return nil, false
	}

	return resolved, true
}

// SessionID retrieves the session identifier bound to the current request.
func SessionID(c *gin.Context) string {
	if val, exists := c.Get(SessionIDKey); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}
