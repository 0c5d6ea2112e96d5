package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks live WebSocket connections across all rooms.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pairprog_connections_active",
		Help: "Number of live WebSocket connections.",
	})

	// MessagesTotal counts inbound client messages by message type.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairprog_messages_total",
		Help: "Inbound WebSocket messages by type.",
	}, []string{"type"})

	// ProtocolErrorsTotal counts validation errors answered to clients.
	ProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pairprog_protocol_errors_total",
		Help: "Protocol validation errors by error code.",
	}, []string{"code"})

	// PersistFailuresTotal counts failed durable writes of room code.
	PersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairprog_persist_failures_total",
		Help: "Failed durable writes of room code.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
