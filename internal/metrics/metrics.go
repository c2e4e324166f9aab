package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	websocketConnections prometheus.Gauge
	inboundEventsTotal   *prometheus.CounterVec
	eventsDeliveredTotal *prometheus.CounterVec
	eventsDroppedTotal   *prometheus.CounterVec

	mutationsTotal        *prometheus.CounterVec
	mutationDuration      *prometheus.HistogramVec
	suppressedDeliveries  prometheus.Counter
	presenceTransitions   *prometheus.CounterVec
	rateLimitBlockedTotal *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		websocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_websocket_connections",
			Help: "Current number of registered WebSocket connections",
		}),
		inboundEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_inbound_events_total",
			Help: "Inbound client events by type and outcome",
		}, []string{"event", "outcome"}),
		eventsDeliveredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Outbound events queued to a connection",
		}, []string{"event"}),
		eventsDroppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Outbound events that could not be queued",
		}, []string{"event", "reason"}),

		mutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_message_mutations_total",
			Help: "Message mutations by operation and result code",
		}, []string{"op", "result"}),
		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_message_mutation_duration_seconds",
			Help:    "Time from inbound mutation to dispatch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		suppressedDeliveries: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_suppressed_deliveries_total",
			Help: "Live pushes withheld because of a block relationship",
		}),
		presenceTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_presence_transitions_total",
			Help: "Online and offline transitions",
		}, []string{"state"}),
		rateLimitBlockedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limit_blocked_total",
			Help: "Inbound events rejected by a rate limiter",
		}, []string{"limiter"}),
	}
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(n))
}

func (m *Metrics) RecordInbound(event, outcome string) {
	if m == nil {
		return
	}
	m.inboundEventsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RecordDelivered(event string) {
	if m == nil {
		return
	}
	m.eventsDeliveredTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordDropped(event, reason string) {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) RecordMutation(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(op, result).Inc()
	m.mutationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.suppressedDeliveries.Inc()
}

func (m *Metrics) RecordPresence(state string) {
	if m == nil {
		return
	}
	m.presenceTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimitBlockedTotal.WithLabelValues(limiter).Inc()
}
