// Package server coordinates client connection accounting, room-scoped
// fan-out, and connection cleanup for the Huddle WebSocket system via the
// Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub tracks every live WebSocket client and fans event payloads out to
// room-membership snapshots produced by the Registry. It owns nothing about
// rooms themselves; the Registry is injected so multiple independent
// instances can run side by side in tests.
type Hub struct {
	cfg      Config
	registry *Registry
	origins  *originChecker

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub bound to the given configuration and room registry.
// The returned Hub is ready to manage connections once Run is started.
func NewHub(cfg Config, registry *Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		registry:   registry,
		origins:    newOriginChecker(cfg.AllowedOrigins),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the room registry this hub dispatches into.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's accounting loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				log.Printf("Client %s disconnected. Total clients: %d", client.id, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// safeSend delivers a payload to a single client without blocking. It
// returns false when the client is gone or its send buffer is full.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// from under the select.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// fanOut encodes one outbound event and delivers it to every recipient in
// the snapshot, minus the excluded client if any. Clients whose send buffer
// is full are evicted from the hub.
func (h *Hub) fanOut(recipients []*Client, exclude *Client, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		log.Printf("Error encoding %s event: %v", event, err)
		return
	}

	var failed []*Client
	for _, client := range recipients {
		if client == exclude {
			continue
		}
		if !h.safeSend(client, data) {
			failed = append(failed, client)
		}
	}

	h.removeFailedClients(failed)
}

// removeFailedClients drops clients that could not receive a payload and
// closes their send channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s removed due to full send buffer", client.id)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection %s: %v", client.id, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
