package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/internal/application/events"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
)

// EventsHandler serves the audit-log replay operation over HTTP.
type EventsHandler struct {
	svc    *events.Service
	logger logging.Logger
}

// NewEventsHandler constructs an EventsHandler over the given application service.
func NewEventsHandler(svc *events.Service, logger logging.Logger) *EventsHandler {
	return &EventsHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the event-replay route under the given router group.
func (h *EventsHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/events/replay", h.Replay)
}

// Replay handles POST /events/replay?since=seq&limit=n: replay_events.
func (h *EventsHandler) Replay(c *gin.Context) {
	since, err := strconv.ParseInt(c.Query("since"), 10, 64)
	if err != nil {
		abortWithError(c, errors.InvalidParam("since must be a valid integer sequence number"))
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	result, err := h.svc.ReplayEvents(c.Request.Context(), since, limit)
	if err != nil {
		h.logger.Error("replay events failed", logging.Int64("since", since), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{
		"last_seq":    result.LastSeq,
		"republished": result.Republished,
		"entries":     result.Entries,
	})
}
