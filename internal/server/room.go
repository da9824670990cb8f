// Package server defines the Room entity: the membership, host assignment,
// and expiry timer of a single chat session.
package server

import (
	"sync"
	"time"
)

// member is one connection currently joined to a room.
type member struct {
	name   string
	client *Client
}

// Room is a bounded chat session. All mutable fields are guarded by mu,
// which must be acquired while holding the registry lock (read or write)
// that produced the Room pointer. The registry lock always comes first.
type Room struct {
	id        string
	hostToken string
	createdAt time.Time

	mu         sync.Mutex
	members    map[string]*member
	order      []string
	hostConnID string

	// expiry fires only while the room has never been joined; the first
	// join cancels it inside the same critical section that admits the
	// member.
	expiry     *time.Timer
	everJoined bool
}

func newRoom(id, hostToken string) *Room {
	return &Room{
		id:        id,
		hostToken: hostToken,
		createdAt: time.Now(),
		members:   make(map[string]*member),
	}
}

// addMember registers a connection under the given display name, keeping
// insertion order for roster broadcasts. Caller holds mu.
func (r *Room) addMember(connID, name string, client *Client) {
	r.members[connID] = &member{name: name, client: client}
	r.order = append(r.order, connID)
}

// removeMember drops a connection from the membership and the order slice.
// Caller holds mu. Returns false if the connection was not a member.
func (r *Room) removeMember(connID string) bool {
	if _, ok := r.members[connID]; !ok {
		return false
	}
	delete(r.members, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// roster returns the display names of current members in join order.
// Caller holds mu.
func (r *Room) roster() []string {
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		names = append(names, r.members[id].name)
	}
	return names
}

// recipients returns a snapshot of the member clients, taken under the same
// critical section as the mutation that triggers a broadcast. Caller holds mu.
func (r *Room) recipients() []*Client {
	clients := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		clients = append(clients, r.members[id].client)
	}
	return clients
}

// cancelExpiry stops a pending auto-deletion, if any. Caller holds mu.
func (r *Room) cancelExpiry() {
	if r.expiry != nil {
		r.expiry.Stop()
		r.expiry = nil
	}
}
