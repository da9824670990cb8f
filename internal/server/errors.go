// Package server defines the protocol error taxonomy. Every failure a client
// can trigger maps to one of these sentinel values, which the dispatch layer
// converts into the user-visible acknowledgment string.
package server

import "errors"

var (
	// ErrMissingParameters reports a join request without a room id or
	// username.
	ErrMissingParameters = errors.New("missing parameters")

	// ErrRoomNotFound reports an operation against a room id that is absent
	// from the registry, either never created, already closed, or expired.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull reports a join against a room at capacity.
	ErrRoomFull = errors.New("room full")

	// ErrInvalidHostToken reports a close attempt whose token does not match
	// the room's host token.
	ErrInvalidHostToken = errors.New("invalid host token")

	// ErrNotInRoom reports a message from a connection that has not joined
	// a room.
	ErrNotInRoom = errors.New("not in a room")

	// ErrRateLimited reports a message rejected by the sliding-window
	// limiter.
	ErrRateLimited = errors.New("rate limited")
)
