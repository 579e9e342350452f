package gateway

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler terminates the handshake: the bearer token rides the query
// string, and both rejection cases are decided before any session exists or
// any other component is touched.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleConnection upgrades /ws?token=T. A missing token is refused with
// Unauthorized; a token that already has a live session with Already
// connected. On success the core is notified so the client gets its opening
// snapshot.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	cm := h.connectionManager

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !cm.reserve(token) {
		http.Error(w, "Already connected", http.StatusUnauthorized)
		return
	}

	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.release(token)
		log.Error().Err(err).Str("token", token).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(cm, token, ws)
	cm.bind(conn)

	// The opening snapshot is queued before the read pump exists, so no
	// client frame can be dispatched ahead of it.
	cm.core.Connected(token)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("token", token).
		Msg("websocket connection established")
}

// HandleStats reports active connection counts.
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"total_connections":%d}`, h.connectionManager.Stats())
}

// RegisterRoutes mounts the websocket routes on the mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleStats)
}
