// Package server exposes the HTTP surface: room creation and info queries,
// the WebSocket upgrade endpoint, and a health check.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// CreateRoomResponse is the body returned by POST /rooms. The host token is
// delivered only here, out-of-band of the room itself.
type CreateRoomResponse struct {
	RoomID    string `json:"roomId"`
	HostToken string `json:"hostToken"`
}

// RoomInfoResponse is the body returned by GET /rooms/{id}. CreatedAt is
// epoch milliseconds.
type RoomInfoResponse struct {
	UserCount int   `json:"userCount"`
	CreatedAt int64 `json:"createdAt"`
}

// CreateRoomHandler allocates a fresh room and returns its id together with
// the secret host token.
func (h *Hub) CreateRoomHandler(w http.ResponseWriter, _ *http.Request) {
	roomID, hostToken := h.registry.CreateRoom()
	writeJSON(w, http.StatusCreated, CreateRoomResponse{
		RoomID:    roomID,
		HostToken: hostToken,
	})
}

// RoomInfoHandler reports the member count and creation time of a room, or
// 404 when the room is absent, closed, or expired.
func (h *Hub) RoomInfoHandler(w http.ResponseWriter, r *http.Request) {
	count, createdAt, err := h.registry.RoomInfo(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Room not found"})
		return
	}

	writeJSON(w, http.StatusOK, RoomInfoResponse{
		UserCount: count,
		CreatedAt: createdAt.UnixMilli(),
	})
}

// WebSocketHandler upgrades the HTTP connection, creates a Client for it,
// and hands it to the hub, which launches the pump goroutines.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server
// status as plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Huddle server is running!"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
