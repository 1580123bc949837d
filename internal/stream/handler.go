package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// WebSocketHandler upgrades HTTP connections and relays hub events to
// them.
type WebSocketHandler struct {
	hub         *Hub
	frontendURL string
	isDev       bool
}

// NewWebSocketHandler wires a handler to the hub.
func NewWebSocketHandler(hub *Hub, frontendURL string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, frontendURL: frontendURL, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade. The
// optional session_id path parameter narrows the stream to one
// session.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	events, cancel := h.hub.Subscribe(sessionID, 64)
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	// Drain the read side so close frames and pings are processed.
	go func() {
		defer stop()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-events:
			if !ok {
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.frontendURL != "" && strings.HasPrefix(origin, h.frontendURL)
}
