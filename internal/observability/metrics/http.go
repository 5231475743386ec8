package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal             *prometheus.CounterVec
	turnDuration           *prometheus.HistogramVec
	turnEvidence           *prometheus.HistogramVec
	noGroundedTotal        *prometheus.CounterVec
	intentFallbackTotal    *prometheus.CounterVec
	danglingCitationsTotal *prometheus.CounterVec
	turnFailuresTotal      *prometheus.CounterVec
	retrievalRequestsTotal *prometheus.CounterVec
	retrievalResults       *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "analyst",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "turns_total",
			Help:      "Total answered turns by intent.",
		},
		[]string{"service", "intent"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds from classification to commit.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "intent"},
	)
	turnEvidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "turn_citations",
			Help:      "Distribution of citations attached per answered turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "intent"},
	)
	noGroundedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "no_grounded_evidence_total",
			Help:      "Total turns answered without grounded evidence.",
		},
		[]string{"service", "intent"},
	)
	intentFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "intent_fallback_total",
			Help:      "Total turns routed to the default intent after an unrecognised label.",
		},
		[]string{"service"},
	)
	danglingCitationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "citations",
			Name:      "dangling_stripped_total",
			Help:      "Total citation ids stripped because they referenced missing evidence.",
		},
		[]string{"service"},
	)
	turnFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "planner",
			Name:      "turn_failures_total",
			Help:      "Total failed turns by pipeline stage.",
		},
		[]string{"service", "stage"},
	)
	retrievalRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analyst",
			Subsystem: "retrieval",
			Name:      "tool_requests_total",
			Help:      "Total retrieve_documents calls by surface.",
		},
		[]string{"service", "surface"},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analyst",
			Subsystem: "retrieval",
			Name:      "tool_results",
			Help:      "Distribution of results returned per retrieve_documents call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		},
		[]string{"service", "surface"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		turnDuration,
		turnEvidence,
		noGroundedTotal,
		intentFallbackTotal,
		danglingCitationsTotal,
		turnFailuresTotal,
		retrievalRequestsTotal,
		retrievalResults,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		turnsTotal:             turnsTotal,
		turnDuration:           turnDuration,
		turnEvidence:           turnEvidence,
		noGroundedTotal:        noGroundedTotal,
		intentFallbackTotal:    intentFallbackTotal,
		danglingCitationsTotal: danglingCitationsTotal,
		turnFailuresTotal:      turnFailuresTotal,
		retrievalRequestsTotal: retrievalRequestsTotal,
		retrievalResults:       retrievalResults,
	}
}

// Registerer lets other metric sets share this server's /metrics endpoint.
func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case path == "/v1/documents/stats":
		return path
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/sessions/") && strings.HasSuffix(path, "/turns"):
		return "/v1/sessions/{session_id}/turns"
	case strings.HasPrefix(path, "/v1/sessions/") && strings.HasSuffix(path, "/queries"):
		return "/v1/sessions/{session_id}/queries"
	case strings.HasPrefix(path, "/mcp"):
		return "/mcp"
	default:
		return path
	}
}

// TurnObservation is what the planner reports for one answered turn.
type TurnObservation struct {
	Intent            string
	Grounded          bool
	Citations         int
	IntentFallback    bool
	StrippedCitations int
	Duration          time.Duration
}

func (m *HTTPServerMetrics) RecordTurn(service string, obs TurnObservation) {
	intent := obs.Intent
	if intent == "" {
		intent = "unknown"
	}
	m.turnsTotal.WithLabelValues(service, intent).Inc()
	m.turnDuration.WithLabelValues(service, intent).Observe(obs.Duration.Seconds())
	m.turnEvidence.WithLabelValues(service, intent).Observe(float64(obs.Citations))

	if !obs.Grounded {
		m.noGroundedTotal.WithLabelValues(service, intent).Inc()
	}
	if obs.IntentFallback {
		m.intentFallbackTotal.WithLabelValues(service).Inc()
	}
	if obs.StrippedCitations > 0 {
		m.danglingCitationsTotal.WithLabelValues(service).Add(float64(obs.StrippedCitations))
	}
}

func (m *HTTPServerMetrics) RecordTurnFailure(service, stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.turnFailuresTotal.WithLabelValues(service, stage).Inc()
}

func (m *HTTPServerMetrics) RecordRetrieval(service, surface string, results int) {
	m.retrievalRequestsTotal.WithLabelValues(service, surface).Inc()
	m.retrievalResults.WithLabelValues(service, surface).Observe(float64(results))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
