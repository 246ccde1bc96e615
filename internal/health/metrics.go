package health

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "s3conn"

// Metrics holds all Prometheus metrics for the client. It satisfies the
// connection package's Recorder.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	AttemptsTotal    *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	RedirectsTotal   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	ConnectsTotal    prometheus.Counter
	RequestsInFlight prometheus.Gauge
	BusyConnections  prometheus.Gauge
	EndpointUp       prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Logical requests by method and final result",
			},
			[]string{"method", "result"},
		),
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Wire attempts by method and response code (500 when no response)",
			},
			[]string{"method", "code"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retries scheduled after transport or protocol errors",
			},
			[]string{"method"},
		),
		RedirectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "redirects_total",
				Help:      "Redirects followed",
			},
			[]string{"method"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Attempt latency histogram",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method"},
		),
		BytesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Header and body bytes sent",
			},
		),
		BytesReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_received_total",
				Help:      "Header and body bytes received",
			},
		),
		ConnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connects_total",
				Help:      "Transport (re)initialisations",
			},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Logical requests currently running",
			},
		),
		BusyConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "busy_connections",
				Help:      "Connections currently acquired",
			},
		),
		EndpointUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "endpoint_up",
				Help:      "Whether the last health probe succeeded (1=yes, 0=no)",
			},
		),
	}
}

// RequestStarted marks a logical request as running.
func (m *Metrics) RequestStarted(method string) {
	m.RequestsInFlight.Inc()
}

// RequestFinished records the final outcome of a logical request.
func (m *Metrics) RequestFinished(method string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.RequestsInFlight.Dec()
	m.RequestsTotal.WithLabelValues(method, result).Inc()
}

// Attempt records one completed wire attempt.
func (m *Metrics) Attempt(method string, code int, d time.Duration, sent, received int64) {
	m.AttemptsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
	m.BytesSent.Add(float64(sent))
	m.BytesReceived.Add(float64(received))
}

// Retry records a scheduled retry.
func (m *Metrics) Retry(method string) {
	m.RetriesTotal.WithLabelValues(method).Inc()
}

// Redirect records a followed redirect.
func (m *Metrics) Redirect(method string) {
	m.RedirectsTotal.WithLabelValues(method).Inc()
}

// Connect records a transport (re)initialisation.
func (m *Metrics) Connect() {
	m.ConnectsTotal.Inc()
}

// SetBusyConnections updates the acquired connection gauge.
func (m *Metrics) SetBusyConnections(n int) {
	m.BusyConnections.Set(float64(n))
}

// SetEndpointUp updates the endpoint health gauge.
func (m *Metrics) SetEndpointUp(up bool) {
	if up {
		m.EndpointUp.Set(1)
	} else {
		m.EndpointUp.Set(0)
	}
}
