// Package server generates the opaque identifiers used by the coordinator:
// short room ids shared between participants, secret host tokens, and
// per-connection ids.
package server

import (
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
)

const (
	roomIDLength    = 8
	roomIDAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	hostTokenLength = 24
)

// defaultRoomID produces lowercase alphanumeric room ids that are easy to
// share out-of-band.
var defaultRoomID = mustGenerator(nanoid.CustomASCII(roomIDAlphabet, roomIDLength))

// defaultHostToken produces the secret capability proving the right to close
// a room.
var defaultHostToken = mustGenerator(nanoid.Standard(hostTokenLength))

func mustGenerator(gen func() string, err error) func() string {
	if err != nil {
		panic(err)
	}
	return gen
}

// newConnID returns an identifier for a single WebSocket connection.
func newConnID() string {
	return uuid.NewString()
}
