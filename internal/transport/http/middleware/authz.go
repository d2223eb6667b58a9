package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HasTenantRole reports whether the principal on the context holds an
// active binding to the tenant with one of the listed base roles.
func HasTenantRole(c *gin.Context, tenantID string, roles []string) bool {
	resolved, ok := ResolvedPrincipal(c)
	if !ok || tenantID == "" {
		return false
	}
	binding := resolved.Principal.BindingFor(tenantID)
	if binding == nil {
		return false
	}
	for _, role := range roles {
		if strings.EqualFold(binding.BaseRole, role) {
			return true
		}
	}
	return false
}

// RequireTenantRole gates tenant-scoped administrative routes: the caller
// must hold one of the listed roles in the tenant addressed by the path
// parameter. Callers without a binding get the same 404 as a tenant that
// does not exist, so the endpoint never confirms which tenant IDs are real.
func RequireTenantRole(param string, roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := ResolvedPrincipal(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if !HasTenantRole(c, c.Param(param), roles) {
			c.AbortWithStatusJSON(http.StatusNotFound,
				newErrorResponse(c, "tenant not found"))
			return
		}

		c.Next()
	}
}

// RequireAnyTenantRole gates platform-level administrative routes that are
// not scoped to a path tenant: the caller must hold one of the listed roles
// in at least one tenant.
func RequireAnyTenantRole(roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved, ok := ResolvedPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		for _, binding := range resolved.Principal.Bindings {
			if !binding.Active() {
				continue
			}
			for _, role := range roles {
				if strings.EqualFold(binding.BaseRole, role) {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient role"))
	}
}
