package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "qa"
	subsystem = "relay"
)

// Request modes.
const (
	ModeUnary  = "unary"
	ModeStream = "stream"
)

// Metrics tracks relay traffic.
//
// Metrics:
//   - qa_relay_requests_total: relayed questions by mode and outcome
//   - qa_relay_request_duration_seconds: time from question to last byte
//   - qa_relay_upstream_errors_total: upstream failures by error kind
//   - qa_relay_stream_fragments_total: fragments forwarded downstream
//   - qa_relay_active_streams: streams currently open
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	fragmentsTotal  prometheus.Counter
	activeStreams   prometheus.Gauge
}

// New creates relay metrics and registers them with registry. A nil registry
// gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of relayed questions",
			},
			[]string{"mode", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of relayed questions in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upstream_errors_total",
				Help:      "Total number of failed upstream calls by kind",
			},
			[]string{"kind"},
		),
		fragmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stream_fragments_total",
				Help:      "Total number of text fragments forwarded to clients",
			},
		),
		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_streams",
				Help:      "Number of streams currently being relayed",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamErrors,
		m.fragmentsTotal,
		m.activeStreams,
	)
	return m
}

// ObserveRequest records one finished question.
func (m *Metrics) ObserveRequest(mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(mode, outcome).Inc()
	m.requestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// UpstreamError counts a failed upstream call.
func (m *Metrics) UpstreamError(kind string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(kind).Inc()
}

// Fragment counts one forwarded fragment.
func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.fragmentsTotal.Inc()
}

// StreamOpened and StreamClosed bracket a relayed stream.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
