// Package server implements per-connection throttling that protects the hub
// from clients flooding the relay.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter allows capacity messages per interval with a burst of capacity.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Limit(float64(capacity)/interval.Seconds()), capacity)
}
