// Package server implements the event protocol: validation and dispatch of
// inbound join-room, message, typing, stop-typing, and close-room events,
// plus the disconnect cleanup path.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// User-visible acknowledgment strings. Protocol errors never crash the
// connection; they travel back to the caller inside an ack payload.
const (
	msgMissingParameters = "Missing parameters"
	msgRoomNotFoundJoin  = "Room not found or closed"
	msgRoomNotFound      = "Room not found"
	msgInvalidHostToken  = "Invalid host token"
	msgNotInRoom         = "Not in a room"
	msgAlreadyInRoom     = "Already in a room"
	msgRateLimited       = "Rate limit exceeded, slow down"
	msgInvalidMessage    = "Invalid message"
	msgServerError       = "Server error"
)

// dispatch parses one inbound frame and routes it to its handler. A panic in
// a handler is recovered and converted into a generic server-error ack; it
// must never take down the connection or the process.
func (h *Hub) dispatch(c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling event from %s: %v", c.addr, r)
			h.sendAck(c, Ack{OK: false, Error: msgServerError})
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid frame from %s: %v", c.addr, err)
		h.sendAck(c, Ack{OK: false, Error: msgInvalidMessage})
		return
	}

	switch env.Event {
	case EventJoinRoom:
		h.handleJoin(c, env.Data)
	case EventMessage:
		h.handleMessage(c, env.Data)
	case EventTyping:
		h.handleTyping(c, EventTyping)
	case EventStopTyping:
		h.handleTyping(c, EventStopTyping)
	case EventCloseRoom:
		h.handleClose(c, env.Data)
	default:
		log.Printf("Unknown event %q from %s", env.Event, c.addr)
		h.sendAck(c, Ack{Event: env.Event, OK: false, Error: msgInvalidMessage})
	}
}

// handleJoin admits the connection into a room, announces the newcomer and
// the updated roster to every member including the joiner, then acknowledges
// the caller.
func (h *Hub) handleJoin(c *Client, data json.RawMessage) {
	var req JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" || req.Username == "" {
		h.ackFailure(c, EventJoinRoom, ErrMissingParameters)
		return
	}

	// One room per connection lifetime; re-join requires a fresh connection.
	if c.session.roomID != "" {
		h.sendAck(c, Ack{Event: EventJoinRoom, OK: false, Error: msgAlreadyInRoom})
		return
	}

	res, err := h.registry.Join(req.RoomID, c, req.Username, req.HostToken)
	if err != nil {
		h.ackFailure(c, EventJoinRoom, err)
		return
	}

	c.session.roomID = req.RoomID
	c.session.displayName = res.DisplayName
	c.session.isHost = res.Host

	h.fanOut(res.Recipients, nil, EventSystem, SystemNotice{Type: SystemJoin, Username: res.DisplayName})
	h.fanOut(res.Recipients, nil, EventParticipants, res.Roster)

	h.sendAck(c, Ack{
		Event:     EventJoinRoom,
		OK:        true,
		RoomID:    req.RoomID,
		UserCount: res.UserCount,
		Host:      res.Host,
	})
}

// ackFailure acknowledges a failed event with the user-visible string for
// the given protocol error.
func (h *Hub) ackFailure(c *Client, event string, err error) {
	h.sendAck(c, Ack{Event: event, OK: false, Error: h.userMessage(event, err)})
}

// userMessage maps a protocol error to the exact string surfaced to clients.
// ErrRoomNotFound reads differently on join, where a closed room and an
// unknown id are indistinguishable to the caller.
func (h *Hub) userMessage(event string, err error) string {
	switch {
	case errors.Is(err, ErrMissingParameters):
		return msgMissingParameters
	case errors.Is(err, ErrRoomNotFound):
		if event == EventJoinRoom {
			return msgRoomNotFoundJoin
		}
		return msgRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return fmt.Sprintf("Room full (max %d)", h.cfg.RoomCapacity)
	case errors.Is(err, ErrInvalidHostToken):
		return msgInvalidHostToken
	case errors.Is(err, ErrNotInRoom):
		return msgNotInRoom
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	default:
		return msgServerError
	}
}

// handleMessage relays a chat line to every member of the sender's room,
// including the sender. The text is truncated, never transformed; content
// policy belongs to clients.
func (h *Hub) handleMessage(c *Client, data json.RawMessage) {
	if c.session.roomID == "" {
		h.ackFailure(c, EventMessage, ErrNotInRoom)
		return
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		h.sendAck(c, Ack{Event: EventMessage, OK: false, Error: msgInvalidMessage})
		return
	}

	if !c.session.limiter.allow() {
		h.ackFailure(c, EventMessage, ErrRateLimited)
		return
	}

	recipients, err := h.registry.Members(c.session.roomID)
	if err != nil {
		// The room was closed out from under us; the session catches up now.
		c.detachSession()
		h.ackFailure(c, EventMessage, ErrNotInRoom)
		return
	}

	h.fanOut(recipients, nil, EventMessage, ChatMessage{
		From: c.session.displayName,
		Text: truncate(text, h.cfg.MessageMaxLength),
		Ts:   time.Now().UnixMilli(),
	})

	h.sendAck(c, Ack{Event: EventMessage, OK: true})
}

// handleTyping relays a typing or stop-typing indicator to every member of
// the room except the sender. Indicators from roomless connections are
// silently ignored; they carry no ack either way.
func (h *Hub) handleTyping(c *Client, event string) {
	if c.session.roomID == "" {
		return
	}

	recipients, err := h.registry.Members(c.session.roomID)
	if err != nil {
		c.detachSession()
		return
	}

	h.fanOut(recipients, c, event, TypingNotice{Username: c.session.displayName})
}

// handleClose deletes a room on presentation of its host token, notifies all
// members, and ends their participation. Member connections stay open but
// roomless.
func (h *Hub) handleClose(c *Client, data json.RawMessage) {
	var req CloseRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		h.ackFailure(c, EventCloseRoom, ErrMissingParameters)
		return
	}

	recipients, err := h.registry.Close(req.RoomID, req.HostToken)
	if err != nil {
		h.ackFailure(c, EventCloseRoom, err)
		return
	}

	h.fanOut(recipients, nil, EventSystem, SystemNotice{Type: SystemRoomClosed})

	// The room is gone from the registry, so no further broadcast can reach
	// these members. Each session notices on its next event; only our own
	// session may be detached here, sessions belong to their connections.
	if c.session.roomID == req.RoomID {
		c.detachSession()
	}

	h.sendAck(c, Ack{Event: EventCloseRoom, OK: true})
}

// handleDisconnect removes a departing connection from its room and, when
// the room survives, announces the leave and the updated roster to the
// remaining members. Cleanup is unconditionally best-effort: nothing here
// may propagate an error back to the transport.
func (h *Hub) handleDisconnect(c *Client) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in disconnect cleanup for %s: %v", c.addr, r)
		}
	}()

	if c.session.roomID == "" {
		return
	}

	name := c.session.displayName
	res := h.registry.Leave(c.session.roomID, c.id)
	c.detachSession()

	if !res.Removed || res.RoomGone {
		return
	}

	h.fanOut(res.Recipients, nil, EventSystem, SystemNotice{Type: SystemLeave, Username: name})
	h.fanOut(res.Recipients, nil, EventParticipants, res.Roster)
}

// sendAck delivers an acknowledgment to the originating client only.
func (h *Hub) sendAck(c *Client, ack Ack) {
	data, err := encodeEvent(EventAck, ack)
	if err != nil {
		log.Printf("Error encoding ack for %s: %v", c.addr, err)
		return
	}
	if !h.safeSend(c, data) {
		h.removeFailedClients([]*Client{c})
	}
}

// detachSession returns the session to the roomless state.
func (c *Client) detachSession() {
	c.session.roomID = ""
	c.session.displayName = ""
	c.session.isHost = false
}
