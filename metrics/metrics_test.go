package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestMetricsSessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := gaugeValue(t, m.ActiveSessions); got != 1 {
		t.Fatalf("ActiveSessions = %v, want 1", got)
	}
}

func TestMetricsRequestAndErrorCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestDispatched("add", "ok")
	m.RequestDispatched("add", "ok")
	m.ErrorEmitted(-32601)

	if got := counterValue(t, m.RequestsTotal.WithLabelValues("add", "ok")); got != 2 {
		t.Fatalf("requests_total{add,ok} = %v, want 2", got)
	}
	if got := counterValue(t, m.ErrorsTotal.WithLabelValues("method")); got != 1 {
		t.Fatalf("errors_total{method} = %v, want 1", got)
	}

	m.DispatchDuration("add", 5*time.Millisecond)
}
