// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// State is the lifecycle position of a client session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one WebSocket connection. Outbound messages, whether broadcasts
// or replies, go through the send queue and are written in order by the
// write pump.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	addr           string
	closed         bool // guarded by Hub.mutex
	state          atomic.Int32
	closeOnce      sync.Once
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
	logger         *slog.Logger
}

// NewClient creates a client for conn. conn may be nil in tests that only
// exercise the hub and the dispatcher.
func NewClient(conn *websocket.Conn, addr string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	bufferSize := cfg.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, bufferSize),
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         logger.With("session", id, "addr", addr),
	}
}

// ID returns the session identifier used in logs.
func (c *Client) ID() string {
	return c.id
}

// Addr returns the peer address, which is also the client's name in broadcasts.
func (c *Client) Addr() string {
	return c.addr
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	c.logger.Debug("session state change", "from", prev.String(), "to", s.String())
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection", "error", err)
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError classifies the error that ended the read loop. Clean
// closures are logged at info, everything else at warn.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("message exceeded maximum size", "max_bytes", c.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		c.logger.Info("client disconnected", "reason", err.Error())
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("client connection closed", "reason", err.Error())
		return
	}

	c.logger.Warn("websocket read error", "error", err)
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.logger.Warn("rate limit exceeded; discarding message",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// readPump delivers inbound messages to handle until the connection ends.
// It returns once the transport is closed, cleanly or not.
func (c *Client) readPump(handle, limited func([]byte)) {
	defer c.closeConn()

	c.setupReadConnection()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			limited(message)
			continue
		}

		handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Warn("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing close message", "error", err)
		}
	}
	return false
}

// writeTextMessage writes one message as one text frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Warn("error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing ping message", "error", err)
		}
		return false
	}
	return true
}
