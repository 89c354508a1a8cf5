package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the relay's Prometheus collectors.
type Metrics struct {
	ConnectedClients  prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	BroadcastSkipped  prometheus.Counter
	RateQueryDuration prometheus.Histogram
	AuditFailures     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaychat_connected_clients",
			Help: "Number of currently connected clients",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaychat_messages_total",
			Help: "Inbound messages by command kind",
		}, []string{"kind"}),
		BroadcastSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaychat_broadcast_skipped_total",
			Help: "Deliveries skipped because the recipient was gone or its queue was full",
		}),
		RateQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaychat_rate_query_seconds",
			Help:    "Time spent fetching currency rates",
			Buckets: prometheus.DefBuckets,
		}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaychat_audit_failures_total",
			Help: "Audit records that could not be appended",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectedClients,
			m.MessagesTotal,
			m.BroadcastSkipped,
			m.RateQueryDuration,
			m.AuditFailures,
		)
	}
	return m
}
