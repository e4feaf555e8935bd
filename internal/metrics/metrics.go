// Package metrics holds the Prometheus instruments of the client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/watchsync/internal/domain"
)

const namespace = "watchsync"

// Discard and rejection reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonBeforeResync = "before_resync"
	ReasonNoConsumer   = "no_consumer"
	ReasonProtocol     = "protocol_violation"
	ReasonUpdatesFull  = "updates_full"
	ReasonQueueFull    = "queue_full"
	ReasonOversized    = "oversized"
	ReasonNotConnected = "not_connected"
)

const (
	ResultApplied = "applied"
	ResultIgnored = "ignored"
	ResultClamped = "clamped"
)

const (
	KindText   = "text"
	KindBinary = "binary"
)

type Metrics struct {
	ReconnectAttempts  prometheus.Counter
	ReconnectExhausted prometheus.Counter
	OutboundRejected   *prometheus.CounterVec
	OutboundSent       prometheus.Counter
	OutboundDepth      prometheus.Gauge
	Inbound            *prometheus.CounterVec
	InboundDiscarded   *prometheus.CounterVec
	PlaybackApplied    *prometheus.CounterVec
	UpdatesDropped     prometheus.Counter
	ConnectionState    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled after a connection loss",
		}),
		ReconnectExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Times the reconnection budget ran out",
		}),
		OutboundRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_rejected_total",
			Help:      "Outbound units rejected at enqueue",
		}, []string{"reason"}),
		OutboundSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sent_total",
			Help:      "Outbound units handed to the transport",
		}),
		OutboundDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbound_depth",
			Help:      "Units waiting in the outbound queue",
		}),
		Inbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_total",
			Help:      "Inbound units by kind",
		}, []string{"kind"}),
		InboundDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_discarded_total",
			Help:      "Inbound units dropped without effect",
		}, []string{"reason"}),
		PlaybackApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_applied_total",
			Help:      "Playback commands by outcome",
		}, []string{"result"}),
		UpdatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "UI updates dropped because the consumer lagged",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state: 0 connecting, 1 open, 2 closing, 3 closed",
		}),
	}
}

func (m *Metrics) SetConnectionState(s domain.ConnState) {
	m.ConnectionState.Set(float64(s))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
