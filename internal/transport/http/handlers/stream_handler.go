package handlers

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/lookout/backend/internal/core/services"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

// StreamHandler pushes monitor events to websocket clients as they
// happen. Each connection gets its own event-bus subscription; a slow
// client only loses its own events.
type StreamHandler struct {
	bus    *services.EventBus
	logger *logger.Logger
}

func NewStreamHandler(bus *services.EventBus, logger *logger.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, logger: logger}
}

func (h *StreamHandler) Handle(c *websocket.Conn) {
	id, events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(id)

	h.logger.Infow("event_stream_connected", "subscriber", id)

	// Drain client frames so close/ping handling works; inbound payloads
	// are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Infow("event_stream_disconnected", "subscriber", id)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Warnw("event_stream_write_failed", "subscriber", id, "error", err)
				return
			}
		}
	}
}
