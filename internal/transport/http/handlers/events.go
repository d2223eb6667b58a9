package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/byronwade/thorbis.com-sub010/internal/transport/http/middleware"
	"github.com/byronwade/thorbis.com-sub010/internal/usecase"
)

// EventsHandler lets business modules append domain facts to the audit trail.
type EventsHandler struct {
	events *usecase.EventService
}

// NewEventsHandler builds the events handler.
func NewEventsHandler(events *usecase.EventService) *EventsHandler {
	return &EventsHandler{events: events}
}

// RegisterRoutes wires the events endpoint into the provided group.
func (h *EventsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.Record)
}

// Record appends a domain fact to the tenant's audit trail.
func (h *EventsHandler) Record(c *gin.Context) {
	var req RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	input := usecase.RecordFactInput{
		TenantID:  req.TenantID,
		Kind:      req.Kind,
		Payload:   req.Payload,
		RequestID: requestIDFrom(c),
	}
	if resolved, ok := middleware.ResolvedPrincipal(c); ok {
		input.PrincipalID = resolved.Principal.ID
	}

	if err := h.events.RecordFact(c.Request.Context(), input); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to record event"))
		return
	}

	c.JSON(http.StatusAccepted, MessageResponse{Message: "event recorded"})
}
