package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/infra/logger"
	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// AuthorizeHandler answers authorization questions for business modules.
type AuthorizeHandler struct {
	evaluator *usecase.AccessEvaluator
}

// NewAuthorizeHandler builds the authorize handler.
func NewAuthorizeHandler(evaluator *usecase.AccessEvaluator) *AuthorizeHandler {
	return &AuthorizeHandler{evaluator: evaluator}
}

// RegisterRoutes wires the authorize endpoint into the provided group.
func (h *AuthorizeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/authorize", h.Authorize)
}

// Authorize evaluates a single access question and returns the decision.
// Denials are still HTTP 200: the decision itself is the answer.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	sensitivity := domain.SensitivityLevel(req.Resource.Sensitivity)
	if req.Resource.Sensitivity != 0 && !sensitivity.Valid() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "resource sensitivity out of range"))
		return
	}
	if sensitivity == 0 {
		sensitivity = domain.SensitivityMin
	}

	input := usecase.AuthorizeRequest{
		TenantID: req.TenantID,
		Action:   req.Action,
		Resource: domain.Resource{
			TenantID:           req.TenantID,
			Type:               req.Resource.Type,
			ID:                 req.Resource.ID,
			OwnerID:            req.Resource.OwnerID,
			Sensitivity:        sensitivity,
			MonetaryValueCents: req.Resource.MonetaryValueCents,
		},
		SessionID: middleware.SessionID(c),
		RequestID: requestIDFrom(c),
	}

	if resolved, ok := middleware.ResolvedPrincipal(c); ok {
		input.Principal = &resolved.Principal
	}

	decision := h.evaluator.Authorize(c.Request.Context(), input)
	c.JSON(http.StatusOK, newDecisionResponse(decision))
}

func requestIDFrom(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	if id, ok := c.Request.Context().Value(logger.RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}
