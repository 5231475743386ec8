package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DependencyMetrics tracks calls to generation, embedding and queue backends
// made through the resilience executor.
type DependencyMetrics struct {
	service string

	callsTotal   *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewDependencyMetrics(service string, registerer prometheus.Registerer) *DependencyMetrics {
	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "dependency",
			Name:      "calls_total",
			Help:      "Total guarded dependency calls by operation and outcome.",
		},
		[]string{"service", "operation", "status"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "dependency",
			Name:      "retries_total",
			Help:      "Total retries scheduled after a retryable failure.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "analyst",
			Subsystem: "dependency",
			Name:      "circuit_open",
			Help:      "1 while the operation's circuit breaker is open or half-open.",
		},
		[]string{"service", "operation"},
	)
	registerer.MustRegister(callsTotal, retriesTotal, breakerState)

	return &DependencyMetrics{
		service:      service,
		callsTotal:   callsTotal,
		retriesTotal: retriesTotal,
		breakerState: breakerState,
	}
}

func (m *DependencyMetrics) ObserveRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *DependencyMetrics) ObserveCall(operation string, _ int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.callsTotal.WithLabelValues(m.service, operation, status).Inc()
}

func (m *DependencyMetrics) ObserveBreakerState(operation, _, to string) {
	open := 0.0
	if to != "closed" {
		open = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(open)
}
