// Package server implements the Huddle room coordinator: an in-memory
// registry of ephemeral, anonymous chat rooms reached over WebSocket
// connections.
//
// The implementation is organized into specialized files for configuration,
// the room registry, connection clients, the event protocol, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows. All state is in-memory and lost on restart by design.
package server
