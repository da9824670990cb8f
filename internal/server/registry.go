// Package server coordinates room lifecycle through the Registry: a
// concurrency-safe mapping of room ids to Room entities that owns creation,
// membership changes, explicit closure, and empty-room expiry.
package server

import (
	"log"
	"sync"
	"time"
)

// JoinResult reports a successful admission into a room. Roster and
// Recipients are snapshots taken under the room's critical section, so
// broadcasts built from them only reach connections that were members at the
// moment the join happened.
type JoinResult struct {
	DisplayName string
	UserCount   int
	Host        bool
	Roster      []string
	Recipients  []*Client
}

// LeaveResult reports the outcome of removing a connection from a room.
// When RoomGone is true the leave emptied the room and it was deleted;
// Roster and Recipients are only populated while the room survives.
type LeaveResult struct {
	Removed    bool
	RoomGone   bool
	Roster     []string
	Recipients []*Client
}

// Registry owns every Room. The room map is guarded by mu; each Room's
// fields are guarded by its own mutex, acquired only while holding mu
// (read or write), so a Room pointer can never be used after its deletion.
type Registry struct {
	cfg Config

	mu    sync.RWMutex
	rooms map[string]*Room

	newRoomID    func() string
	newHostToken func() string
}

// NewRegistry creates an empty Registry using the default id and token
// generators.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:          cfg,
		rooms:        make(map[string]*Room),
		newRoomID:    defaultRoomID,
		newHostToken: defaultHostToken,
	}
}

// CreateRoom allocates a fresh empty room and schedules its expiry. The room
// deletes itself after cfg.RoomExpiry unless someone joins first. Returns
// the room id and the secret host token.
func (reg *Registry) CreateRoom() (string, string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := reg.newRoomID()
	for _, taken := reg.rooms[id]; taken; _, taken = reg.rooms[id] {
		id = reg.newRoomID()
	}

	room := newRoom(id, reg.newHostToken())
	room.expiry = time.AfterFunc(reg.cfg.RoomExpiry, func() {
		reg.expireRoom(id)
	})
	reg.rooms[id] = room

	log.Printf("Room %s created. Total rooms: %d", id, len(reg.rooms))
	return id, room.hostToken
}

// expireRoom deletes a room that is still empty and was never joined when
// its timer fires. The re-check happens under both locks so a join racing
// the timer can never lose a populated room.
func (reg *Registry) expireRoom(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[id]
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.everJoined || len(room.members) > 0 {
		return
	}

	room.expiry = nil
	delete(reg.rooms, id)
	log.Printf("Room %s expired after %s with no members", id, reg.cfg.RoomExpiry)
}

// RoomInfo returns the current member count and creation time of a room.
func (reg *Registry) RoomInfo(id string) (int, time.Time, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[id]
	if !ok {
		return 0, time.Time{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members), room.createdAt, nil
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Join admits a connection into a room. The capacity check and the insert
// are atomic with respect to every other mutator of the same room, any
// pending expiry timer is cancelled before the critical section is released,
// and a matching host token reassigns host status to the joiner (last valid
// join wins). The display name is truncated to the configured maximum.
func (reg *Registry) Join(roomID string, client *Client, displayName, hostToken string) (JoinResult, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if len(room.members) >= reg.cfg.RoomCapacity {
		return JoinResult{}, ErrRoomFull
	}

	room.cancelExpiry()
	room.everJoined = true

	name := truncate(displayName, reg.cfg.NameMaxLength)
	room.addMember(client.id, name, client)

	host := hostToken != "" && hostToken == room.hostToken
	if host {
		room.hostConnID = client.id
	}

	return JoinResult{
		DisplayName: name,
		UserCount:   len(room.members),
		Host:        host,
		Roster:      room.roster(),
		Recipients:  room.recipients(),
	}, nil
}

// Leave removes a connection from a room. Leaving a room that is gone, or
// one the connection never joined, is a no-op. A departing host gives up
// host status without transfer; an emptied room is deleted immediately.
func (reg *Registry) Leave(roomID, connID string) LeaveResult {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return LeaveResult{}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.removeMember(connID) {
		return LeaveResult{}
	}
	if room.hostConnID == connID {
		room.hostConnID = ""
	}

	if len(room.members) == 0 {
		room.cancelExpiry()
		delete(reg.rooms, roomID)
		log.Printf("Room %s deleted after last member left", roomID)
		return LeaveResult{Removed: true, RoomGone: true}
	}

	return LeaveResult{
		Removed:    true,
		Roster:     room.roster(),
		Recipients: room.recipients(),
	}
}

// Close deletes a room on behalf of its host. The token must match the
// room's host token; membership stays untouched on failure. On success the
// member snapshot is returned so the caller can notify and detach them.
func (reg *Registry) Close(roomID, hostToken string) ([]*Client, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if hostToken != room.hostToken {
		return nil, ErrInvalidHostToken
	}

	room.cancelExpiry()
	recipients := room.recipients()
	delete(reg.rooms, roomID)

	log.Printf("Room %s closed by host with %d members", roomID, len(recipients))
	return recipients, nil
}

// Members returns a snapshot of the clients currently joined to a room, for
// message and typing fan-out.
func (reg *Registry) Members(roomID string) ([]*Client, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return room.recipients(), nil
}
