package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/ingest/internal/model"
	"github.com/kube-rca/ingest/internal/realtime"
)

const keepAliveInterval = 25 * time.Second

type eventSubscriber interface {
	Subscribe(group string) (<-chan realtime.Event, func())
}

// RealtimeHandler - 테넌트 그룹의 Incident 이벤트를 SSE로 전달
type RealtimeHandler struct {
	hub eventSubscriber
}

func NewRealtimeHandler(hub eventSubscriber) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream godoc
// @Summary Subscribe to incident events
// @Description Server-Sent Events: IncidentCreated, IncidentUpdated, IncidentResolved.
// @Tags realtime
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {object} model.IncidentNotification
// @Router /api/v1/realtime [get]
func (h *RealtimeHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe(model.TenantGroup(tenantOf(c)))
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Payload)
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}
