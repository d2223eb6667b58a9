package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// AuditHandler exposes the tenant-partitioned decision log.
type AuditHandler struct {
	recorder *usecase.AuditRecorder
	store    port.AuditRepository
}

// NewAuditHandler builds the audit handler.
func NewAuditHandler(recorder *usecase.AuditRecorder, store port.AuditRepository) *AuditHandler {
	return &AuditHandler{recorder: recorder, store: store}
}

// RegisterRoutes wires audit endpoints into the provided tenant group. The
// trail is administrative data, so both routes sit behind the tenant-admin
// guard.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup, tenantAdmin gin.HandlerFunc) {
	r.GET("/:id/audit", tenantAdmin, h.List)
	r.GET("/:id/audit/verify", tenantAdmin, h.Verify)
}

// List returns a page of the tenant's audit trail ordered by sequence.
func (h *AuditHandler) List(c *gin.Context) {
	tenantID := c.Param("id")

	filter := port.AuditFilter{
		PrincipalID:  c.Query("principal_id"),
		ResourceType: c.Query("resource_type"),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "since must be RFC 3339"))
			return
		}
		filter.Since = since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "until must be RFC 3339"))
			return
		}
		filter.Until = until
	}

	filter.Limit = queryInt(c, "limit", 100)
	filter.Offset = queryInt(c, "offset", 0)
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, err := h.store.ListByTenant(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list audit entries"))
		return
	}

	views := make([]AuditEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, newAuditEntryView(entry))
	}

	c.JSON(http.StatusOK, AuditListResponse{Entries: views, Count: len(views)})
}

// Verify checks the tenant's sequence for gaps. A non-zero missing count
// indicates loss or tampering.
func (h *AuditHandler) Verify(c *gin.Context) {
	tenantID := c.Param("id")

	missing, err := h.recorder.VerifySequence(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify audit sequence"))
		return
	}

	c.JSON(http.StatusOK, AuditVerifyResponse{
		TenantID: tenantID,
		Missing:  missing,
		Intact:   missing == 0,
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
