// Package server coordinates client registration, message broadcast, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// Hub is the registry of connected clients. Membership changes take the write
// lock; deliveries take the read lock and re-check membership, so a client
// that unregisters concurrently is skipped instead of receiving on a closed
// queue.
type Hub struct {
	clients map[*Client]struct{}
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	closing bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	metrics *Metrics
}

// NewHub creates an empty hub. A nil logger uses slog.Default and nil metrics
// are registered on a private registry.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
	}
}

// Context is cancelled when the hub shuts down. Sessions derive their
// request contexts from it.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Register adds client to the set.
func (h *Hub) Register(client *Client) {
	if client == nil {
		h.logger.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.ConnectedClients.Set(float64(clientCount))
	client.logger.Info("client registered", "total_clients", clientCount)
}

// Unregister removes client and closes its outbound queue. Calling it for a
// client that is not registered is a no-op.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	// Closing under the write lock: no delivery can be in flight.
	close(client.send)
	h.mutex.Unlock()

	h.metrics.ConnectedClients.Set(float64(clientCount))
	client.logger.Info("client unregistered", "total_clients", clientCount)
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Contains reports whether client is registered.
func (h *Hub) Contains(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[client]
	return ok
}

// Broadcast delivers msg to every client registered at the time of the call,
// except msg.Sender when set. Failed deliveries are logged and skipped; the
// failing client is left for its own session to remove. It returns the
// number of clients the message was queued for.
func (h *Hub) Broadcast(msg BroadcastMessage) int {
	clients := h.getClientSnapshot()
	if len(clients) == 0 {
		return 0
	}

	delivered := 0
	for _, client := range clients {
		if msg.Sender != nil && client == msg.Sender {
			continue
		}
		if h.safeSend(client, msg.Payload) {
			delivered++
			continue
		}
		h.metrics.BroadcastSkipped.Inc()
		client.logger.Warn("skipping broadcast recipient", "reason", "unregistered or send buffer full")
	}

	h.logger.Debug("broadcast complete", "recipients", len(clients), "delivered", delivered)
	return delivered
}

// SendTo queues payload for a single client. It reports false when the
// client is no longer registered or its queue is full.
func (h *Hub) SendTo(client *Client, payload []byte) bool {
	if h.safeSend(client, payload) {
		return true
	}
	client.logger.Warn("dropping reply", "reason", "unregistered or send buffer full")
	return false
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return lo.Keys(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Go runs fn on a goroutine tracked by Shutdown. It returns false without
// running fn once shutdown has begun.
func (h *Hub) Go(fn func()) bool {
	h.mutex.Lock()
	if h.closing {
		h.mutex.Unlock()
		return false
	}
	h.wg.Add(1)
	h.mutex.Unlock()

	go func() {
		defer h.wg.Done()
		fn()
	}()
	return true
}

// shutdownClients closes every registered connection so the read pumps exit.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		client.closeConn()
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops accepting sessions, closes all client connections and waits
// for their goroutines to finish. It returns context.DeadlineExceeded when
// the timeout elapses first.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.mutex.Lock()
	h.closing = true
	h.mutex.Unlock()

	h.cancel()
	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
