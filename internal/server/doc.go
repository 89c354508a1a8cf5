// Package server implements the relay's HTTP and WebSocket server.
//
// Every connected client gets a session that registers with the Hub, relays
// plain text to the other clients and answers "exchange N" commands with
// currency rates sent to the requester alone. The implementation is split
// into files for configuration, hub management, clients, sessions, routing
// and HTTP handlers.
package server
