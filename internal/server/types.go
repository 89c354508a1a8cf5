// Package server defines shared message payload types and utility helpers that
// are reused across client and hub logic.
package server

import "strings"

// BroadcastMessage is a payload fanned out by the hub. When Sender is set
// the originating client is excluded from delivery.
type BroadcastMessage struct {
	Sender  *Client
	Payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
