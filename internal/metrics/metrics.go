package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the order service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	RemoteCalls  *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
	Orders       *prometheus.CounterVec
	Releases     *prometheus.CounterVec
	Events       *prometheus.CounterVec
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "orders",
			Name:      "remote_calls_total",
			Help:      "Remote calls by dependency, operation and outcome.",
		}, []string{"dependency", "operation", "outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "toko",
			Subsystem: "orders",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "orders",
			Name:      "operations_total",
			Help:      "Order operations by kind and result.",
		}, []string{"operation", "result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "orders",
			Name:      "stock_releases_total",
			Help:      "Compensating stock releases by result.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toko",
			Subsystem: "orders",
			Name:      "events_published_total",
			Help:      "Domain events handed to the bus by kind and result.",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(m.RemoteCalls, m.BreakerState, m.Orders, m.Releases, m.Events)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RemoteCall(dependency, operation, outcome string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(dependency, operation, outcome).Inc()
}

func (m *Metrics) SetBreakerState(dependency string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(dependency).Set(state)
}

func (m *Metrics) OrderOperation(operation, result string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) StockRelease(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Releases.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Events.WithLabelValues(kind, result).Inc()
}
