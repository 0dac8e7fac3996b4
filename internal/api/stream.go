package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"skysurvey/pkg/bus"
	"skysurvey/pkg/store"
)

const streamPingInterval = 30 * time.Second

// StreamHandler bridges the event bus to WebSocket clients: one socket
// per mission subscription.
type StreamHandler struct {
	bus      *bus.Bus
	store    store.MissionStore
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(b *bus.Bus, st store.MissionStore) *StreamHandler {
	return &StreamHandler{
		bus:   b,
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dashboard is served from a different origin in dev.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleStream handles GET /api/missions/{id}/stream. Events published on
// the mission's topic are forwarded as JSON frames until the client
// disconnects or the mission's topic is closed.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("id")
	if _, err := h.store.GetMission(r.Context(), missionID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "mission", missionID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(missionID)
	defer sub.Cancel()

	// Read pump: we never expect client frames, but reading is how the
	// websocket protocol surfaces close and error conditions.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Cancel()
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Topic closed: the mission reached a terminal state.
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "mission finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write failed, dropping client", "mission", missionID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
