package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// FingersHandler pushes finger state changes over a WebSocket.
type FingersHandler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewFingersHandler creates a new FingersHandler reading from hub.
func NewFingersHandler(hub *Hub, logger *slog.Logger) *FingersHandler {
	return &FingersHandler{hub: hub, logger: logger}
}

type fingersMessage struct {
	Fingers    [5]bool `json:"fingers"`
	Count      int     `json:"count"`
	Determined bool    `json:"determined"`
	Timestamp  int64   `json:"timestamp"`
}

// ServeHTTP upgrades the connection and sends the current state followed by
// every change until the client disconnects.
func (h *FingersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	states, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case state := <-states:
			msg := fingersMessage{
				Fingers:    state.Fingers,
				Count:      int(state.Count),
				Determined: state.Determined,
				Timestamp:  time.Now().UnixMilli(),
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write", "err", err)
				return
			}
		}
	}
}
