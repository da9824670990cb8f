// Package server defines the wire envelope and payload types exchanged with
// clients, plus small utility helpers reused across the protocol logic.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event names.
const (
	EventJoinRoom   = "join-room"
	EventMessage    = "message"
	EventTyping     = "typing"
	EventStopTyping = "stop-typing"
	EventCloseRoom  = "close-room"
)

// Outbound event names. EventMessage, EventTyping, and EventStopTyping are
// reused for the corresponding broadcasts.
const (
	EventAck          = "ack"
	EventSystem       = "system"
	EventParticipants = "participants"
)

// System notice types.
const (
	SystemJoin       = "join"
	SystemLeave      = "leave"
	SystemRoomClosed = "room-closed"
)

// Envelope is the JSON frame exchanged in both directions:
// {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of an inbound join-room event.
type JoinRequest struct {
	RoomID    string `json:"roomId"`
	Username  string `json:"username"`
	HostToken string `json:"hostToken,omitempty"`
}

// CloseRequest is the payload of an inbound close-room event.
type CloseRequest struct {
	RoomID    string `json:"roomId"`
	HostToken string `json:"hostToken"`
}

// Ack is the outbound acknowledgment for an inbound event. It stands in for
// per-request callbacks on the plain-WebSocket transport; Event names the
// request being acknowledged.
type Ack struct {
	Event     string `json:"event"`
	OK        bool   `json:"ok"`
	RoomID    string `json:"roomId,omitempty"`
	UserCount int    `json:"userCount,omitempty"`
	Host      bool   `json:"host,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SystemNotice announces a membership change or room closure.
type SystemNotice struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
}

// ChatMessage is a relayed chat line. Ts is epoch milliseconds. The core
// performs no content transformation beyond length truncation.
type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// TypingNotice carries the display name behind a typing or stop-typing
// broadcast.
type TypingNotice struct {
	Username string `json:"username"`
}

// encodeEvent marshals an outbound envelope.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// truncate limits a string to max runes without splitting a code point.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
