package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/repository"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// PolicyHandler exposes policy administration endpoints.
type PolicyHandler struct {
	store    *usecase.PolicyStore
	policies port.PolicyRepository
}

// NewPolicyHandler builds the policy handler.
func NewPolicyHandler(store *usecase.PolicyStore, policies port.PolicyRepository) *PolicyHandler {
	return &PolicyHandler{store: store, policies: policies}
}

// RegisterRoutes wires policy endpoints into the provided group.
func (h *PolicyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reload", h.Reload)
	r.GET("", h.List)
}

// Reload activates a stored policy version. Validation failure returns the
// diagnostics and leaves the previous snapshot serving.
func (h *PolicyHandler) Reload(c *gin.Context) {
	var req PolicyReloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	industry := domain.IndustryVertical(req.Industry)
	if !industry.Valid() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown industry vertical"))
		return
	}

	publishedBy := ""
	if resolved, ok := middleware.ResolvedPrincipal(c); ok {
		publishedBy = resolved.Principal.ID
	}

	diag, err := h.store.Reload(c.Request.Context(), industry, req.Version, publishedBy)
	body := PolicyReloadResponse{
		Industry:      string(diag.Industry),
		Version:       diag.Version,
		Success:       diag.Success,
		Cycle:         diag.Cycle,
		UnknownRoles:  diag.UnknownRoles,
		InvalidGrants: diag.InvalidGrants,
		Conflicts:     diag.Conflicts,
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, body)
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "policy version not found"))
	case !diag.Success && (len(diag.Cycle) > 0 || len(diag.UnknownRoles) > 0 || len(diag.InvalidGrants) > 0):
		c.JSON(http.StatusUnprocessableEntity, body)
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "policy reload failed"))
	}
}

// List returns the stored policy versions and which one is current per industry.
func (h *PolicyHandler) List(c *gin.Context) {
	statuses, err := h.policies.ListStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list policies"))
		return
	}

	views := make([]PolicyStatusView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, PolicyStatusView{
			Industry:    string(st.Industry),
			Version:     st.Version,
			Current:     st.Current,
			PublishedAt: st.PublishedAt,
		})
	}

	c.JSON(http.StatusOK, PolicyStatusListResponse{Policies: views})
}
