// Package server wires the hub, the rate fetcher and the audit sink into the
// relay's HTTP service.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/relaychat/internal/audit"
	"github.com/Tyrowin/relaychat/internal/rates"
)

// Server owns the state shared by every session: one hub, one rate fetcher
// and one audit sink, created at startup and released by Shutdown.
type Server struct {
	cfg      Config
	hub      *Hub
	fetcher  rates.Fetcher
	audit    audit.Sink
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *Metrics
	upgrader websocket.Upgrader
	origins  originPolicy
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFetcher replaces the rate fetcher built from the configuration.
func WithFetcher(f rates.Fetcher) Option {
	return func(s *Server) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithAuditSink sets the audit destination. Without it, audit records are dropped.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Server) {
		if sink != nil {
			s.audit = sink
		}
	}
}

// WithClock overrides the time source used for audit records.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server for cfg. A nil cfg uses the defaults.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}

	s := &Server{
		cfg:      *cfg,
		audit:    audit.NopSink{},
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = rates.NewClient(
			rates.WithURL(cfg.Rates.URL),
			rates.WithArchiveURL(cfg.Rates.ArchiveURL),
			rates.WithMaxDays(cfg.Rates.MaxDays),
			rates.WithLogger(s.logger),
		)
	}

	s.metrics = NewMetrics(s.registry)
	s.hub = NewHub(s.logger, s.metrics)
	s.origins = newOriginPolicy(cfg.AllowedOrigins, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the server's connection registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns a copy of the configuration in effect.
func (s *Server) Config() Config {
	return s.cfg
}

// Registry returns the Prometheus registry holding the server's metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Shutdown closes every session and then the audit sink.
func (s *Server) Shutdown(timeout time.Duration) error {
	hubErr := s.hub.Shutdown(timeout)

	var auditErr error
	if err := s.audit.Close(); err != nil {
		auditErr = fmt.Errorf("close audit sink: %w", err)
	}
	return errors.Join(hubErr, auditErr)
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}
