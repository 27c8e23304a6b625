package handler

import (
	"context"
	"net/http"

	"collabnotes-server/internal/websocket"
	"collabnotes-server/pkg/response"
)

type StatsProvider interface {
	Stats(ctx context.Context) (websocket.Stats, error)
}

type HealthHandler struct {
	relay   StatsProvider
	service string
}

func NewHealthHandler(relay StatsProvider, service string) *HealthHandler {
	return &HealthHandler{relay: relay, service: service}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.relay.Stats(r.Context())
	if err != nil {
		response.ServiceUnavailable(w, "realtime relay stopped")
		return
	}

	response.Success(w, map[string]interface{}{
		"status":  "healthy",
		"service": h.service,
		"relay":   stats,
	})
}
