// Package server wires HTTP handlers into a ServeMux for the Huddle
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, room creation and info, and the WebSocket endpoint.
func SetupRoutes(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("POST /rooms", h.CreateRoomHandler)
	mux.HandleFunc("GET /rooms/{id}", h.RoomInfoHandler)
	mux.HandleFunc("/ws", h.WebSocketHandler)
	return mux
}
