package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// TenantHandler exposes tenant lifecycle endpoints.
type TenantHandler struct {
	tenants *usecase.TenantService
	store   port.TenantRepository
}

// NewTenantHandler builds the tenant handler.
func NewTenantHandler(tenants *usecase.TenantService, store port.TenantRepository) *TenantHandler {
	return &TenantHandler{tenants: tenants, store: store}
}

// RegisterRoutes wires tenant endpoints into the provided group. Provision
// is gated by the platform-level guard; tenant-scoped routes require an
// administrative binding to the addressed tenant.
func (h *TenantHandler) RegisterRoutes(r *gin.RouterGroup, admin, tenantAdmin gin.HandlerFunc) {
	r.POST("", admin, h.Provision)
	r.GET("/:id", tenantAdmin, h.Get)
	r.POST("/:id/suspend", tenantAdmin, h.Suspend)
	r.DELETE("/:id", tenantAdmin, h.Cancel)
}

// Provision creates a tenant in the active state.
func (h *TenantHandler) Provision(c *gin.Context) {
	var req TenantProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	tenant, err := h.tenants.Provision(c.Request.Context(), usecase.ProvisionTenantInput{
		Name:     req.Name,
		Industry: domain.IndustryVertical(req.Industry),
		Plan:     domain.PlanTier(req.Plan),
	})
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownIndustry) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown industry vertical"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to provision tenant"))
		return
	}

	c.JSON(http.StatusCreated, newTenantResponse(*tenant))
}

// Get returns the tenant's current state.
func (h *TenantHandler) Get(c *gin.Context) {
	tenant, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "tenant not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load tenant"))
		return
	}

	c.JSON(http.StatusOK, newTenantResponse(*tenant))
}

// Suspend transitions the tenant to suspended and force-revokes its sessions.
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.transition(c, h.tenants.Suspend, "tenant suspended")
}

// Cancel soft-deletes the tenant. Its rows survive for audit retention.
func (h *TenantHandler) Cancel(c *gin.Context) {
	h.transition(c, h.tenants.Cancel, "tenant cancelled")
}

func (h *TenantHandler) transition(c *gin.Context, fn func(ctx context.Context, tenantID, actorID string) error, message string) {
	actorID := ""
	if resolved, ok := middleware.ResolvedPrincipal(c); ok {
		actorID = resolved.Principal.ID
	}

	err := fn(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		if errors.Is(err, usecase.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "tenant not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to update tenant"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: message})
}
