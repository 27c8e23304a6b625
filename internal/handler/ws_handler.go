package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"collabnotes-server/internal/websocket"

	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
}

// NewWebSocketHandler accepts upgrades from the comma separated
// allowedOrigins; "*" allows any origin.
func NewWebSocketHandler(manager *websocket.Manager, readBufferSize, writeBufferSize int, allowedOrigins string) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowedOrigins string) func(r *http.Request) bool {
	origins := make(map[string]struct{})
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		if _, wildcard := origins["*"]; wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if _, err := h.manager.Attach(conn); err != nil {
		slog.Warn("websocket attach failed", "remote", r.RemoteAddr, "error", err)
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseTryAgainLater, "server shutting down"))
		conn.Close()
	}
}
