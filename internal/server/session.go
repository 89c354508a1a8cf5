package server

import (
	"context"
	"time"

	"github.com/Tyrowin/relaychat/internal/audit"
	"github.com/Tyrowin/relaychat/internal/rates"
)

// RateLimitedText is the reply to a rate query dropped by the per-connection limiter.
const RateLimitedText = "Rate limit exceeded. Try again later."

const auditTimeout = 5 * time.Second

// serve runs one client's session: register, relay inbound messages until the
// transport ends, then unregister. Unregistration is deferred so it runs on
// every exit path.
func (s *Server) serve(c *Client) {
	var writerDone chan struct{}

	s.hub.Register(c)
	defer func() {
		c.setState(StateClosing)
		s.hub.Unregister(c)
		if writerDone != nil {
			<-writerDone
		}
		c.setState(StateClosed)
		c.logger.Info("client disconnected")
	}()

	// Shutdown cancels the hub context before closing connections; a session
	// registered after that snapshot must not start pumping.
	ctx := s.hub.Context()
	if ctx.Err() != nil {
		c.closeConn()
		return
	}

	c.setState(StateActive)
	c.logger.Info("client connected")

	writerDone = make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(
		func(message []byte) {
			s.dispatch(ctx, c, message)
		},
		func(message []byte) {
			s.rejectRateLimited(c, message)
		},
	)
}

// rejectRateLimited accounts for a message dropped by the limiter. Rate
// queries get a reply so the requester is not left waiting; dropped chat
// lines are silent.
func (s *Server) rejectRateLimited(c *Client, message []byte) {
	s.metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
	if ParseCommand(string(message)).Kind == CommandRateQuery {
		s.hub.SendTo(c, []byte(RateLimitedText))
	}
}

// dispatch classifies one inbound message and acts on it.
func (s *Server) dispatch(ctx context.Context, c *Client, message []byte) {
	cmd := ParseCommand(string(message))
	s.metrics.MessagesTotal.WithLabelValues(cmd.Kind.String()).Inc()

	switch cmd.Kind {
	case CommandBroadcast:
		msg := BroadcastMessage{Payload: []byte(c.addr + ": " + cmd.Text)}
		if !s.cfg.EchoToSender {
			msg.Sender = c
		}
		s.hub.Broadcast(msg)
	case CommandInvalidRateQuery:
		c.logger.Info("invalid exchange command", "reason", cmd.Reason)
		s.hub.SendTo(c, []byte(UsageText))
	case CommandRateQuery:
		s.handleRateQuery(ctx, c, cmd.Days)
	}
}

// handleRateQuery replies to the requester only and then appends an audit
// record, whether or not the upstream answered.
func (s *Server) handleRateQuery(ctx context.Context, c *Client, days int) {
	c.logger.Info("exchange command", "days", days)

	start := time.Now()
	reply := s.fetchRates(ctx, days)
	s.metrics.RateQueryDuration.Observe(time.Since(start).Seconds())

	s.hub.SendTo(c, []byte(reply))

	// The record must be written even when shutdown cancelled ctx mid-query.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Append(auditCtx, audit.NewRecord(s.now())); err != nil {
		s.metrics.AuditFailures.Inc()
		c.logger.Error("failed to append audit record", "error", err)
	}
}

// fetchRates bounds the fetch by the configured timeout even if the fetcher
// ignores its context.
func (s *Server) fetchRates(ctx context.Context, days int) string {
	var (
		fetchCtx context.Context
		cancel   context.CancelFunc
	)
	if s.cfg.Rates.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.Rates.Timeout)
	} else {
		fetchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	result := make(chan string, 1)
	go func() {
		result <- s.fetcher.Fetch(fetchCtx, days)
	}()

	select {
	case reply := <-result:
		return reply
	case <-fetchCtx.Done():
		s.logger.Warn("currency fetch timed out", "days", days, "timeout", s.cfg.Rates.Timeout)
		return rates.FailureText
	}
}
