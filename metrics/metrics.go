// Package metrics implements blizzard.Instrumentation on top of
// prometheus/client_golang, so a Session's dispatch activity can be
// scraped without the core package importing prometheus directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector a Session reports through.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Duration       *prometheus.HistogramVec
}

// New registers every collector with reg and returns the handle. Pass the
// result to blizzard.WithMetrics.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blizzard",
				Name:      "requests_total",
				Help:      "Total number of dispatched method calls, by method and outcome.",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		ErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "blizzard",
				Name:      "errors_total",
				Help:      "Total number of protocol errors emitted, by JSON-RPC error code.",
			},
			[]string{"code"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "blizzard",
				Name:      "active_sessions",
				Help:      "Number of sessions currently in the READY state.",
			},
		),
		Duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "blizzard",
				Name:      "dispatch_duration_seconds",
				Help:      "Time from method dispatch to Done being called, by method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// SessionOpened implements blizzard.Instrumentation.
func (m *Metrics) SessionOpened() { m.ActiveSessions.Inc() }

// SessionClosed implements blizzard.Instrumentation.
func (m *Metrics) SessionClosed() { m.ActiveSessions.Dec() }

// RequestDispatched implements blizzard.Instrumentation.
func (m *Metrics) RequestDispatched(method, status string) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

// ErrorEmitted implements blizzard.Instrumentation.
func (m *Metrics) ErrorEmitted(code int) {
	m.ErrorsTotal.WithLabelValues(codeLabel(code)).Inc()
}

// DispatchDuration implements blizzard.Instrumentation.
func (m *Metrics) DispatchDuration(method string, d time.Duration) {
	m.Duration.WithLabelValues(method).Observe(d.Seconds())
}

func codeLabel(code int) string {
	switch code {
	case -32000:
		return "user"
	case -32700:
		return "parse"
	case -32600:
		return "invalid"
	case -32601:
		return "method"
	case -32603:
		return "internal"
	default:
		return "unknown"
	}
}
