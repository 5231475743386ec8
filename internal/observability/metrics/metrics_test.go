package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func expectLine(t *testing.T, exposition, line string) {
	t.Helper()
	if !strings.Contains(exposition, line) {
		t.Fatalf("expected %q in exposition:\n%s", line, exposition)
	}
}

func TestHTTPMiddlewareNormalizesPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/sessions/a/turns", "/v1/sessions/b/turns", "/v1/documents/stats"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m.Handler())
	expectLine(t, out, `analyst_http_requests_total{method="GET",path="/v1/sessions/{session_id}/turns",service="api",status="404"} 2`)
	expectLine(t, out, `analyst_http_requests_total{method="GET",path="/v1/documents/stats",service="api",status="404"} 1`)
}

func TestRecordTurn(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.RecordTurn("api", TurnObservation{Intent: "QUERY", Grounded: false, IntentFallback: true, Duration: time.Second})
	m.RecordTurn("api", TurnObservation{Intent: "QUERY", Grounded: true, Citations: 3, StrippedCitations: 2})
	m.RecordTurnFailure("api", "generation")
	m.RecordRetrieval("api", "mcp", 3)

	out := scrape(t, m.Handler())
	expectLine(t, out, `analyst_planner_turns_total{intent="QUERY",service="api"} 2`)
	expectLine(t, out, `analyst_planner_no_grounded_evidence_total{intent="QUERY",service="api"} 1`)
	expectLine(t, out, `analyst_planner_intent_fallback_total{service="api"} 1`)
	expectLine(t, out, `analyst_citations_dangling_stripped_total{service="api"} 2`)
	expectLine(t, out, `analyst_planner_turn_failures_total{service="api",stage="generation"} 1`)
	expectLine(t, out, `analyst_retrieval_tool_requests_total{service="api",surface="mcp"} 1`)
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartDocument()
	m.FinishDocument("worker", time.Second, nil)
	m.StartDocument()
	m.FinishDocument("worker", time.Second, errors.New("boom"))
	m.ObserveDocument("worker", "ready", 12)
	m.ObserveDocument("worker", "skipped", 0)
	m.ObserveQueueLag("worker", -time.Second)

	out := scrape(t, m.Handler())
	expectLine(t, out, `analyst_worker_document_process_total{service="worker",status="error"} 1`)
	expectLine(t, out, `analyst_worker_document_process_in_flight{service="worker"} 0`)
	expectLine(t, out, `analyst_worker_chunks_indexed_total{service="worker"} 12`)
	expectLine(t, out, `analyst_worker_documents_total{document_status="skipped",service="worker"} 1`)
	if strings.Contains(out, "analyst_worker_queue_lag_seconds_count") {
		t.Fatalf("negative lag must not be observed")
	}
}

func TestDependencyMetricsShareServerRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	deps := NewDependencyMetrics("api", m.Registerer())

	deps.ObserveRetry("ollama.generate", 1)
	deps.ObserveCall("ollama.generate", 2, nil)
	deps.ObserveCall("nats.publish", 1, errors.New("no responders"))
	deps.ObserveBreakerState("nats.publish", "closed", "open")

	out := scrape(t, m.Handler())
	expectLine(t, out, `analyst_dependency_retries_total{operation="ollama.generate",service="api"} 1`)
	expectLine(t, out, `analyst_dependency_calls_total{operation="ollama.generate",service="api",status="success"} 1`)
	expectLine(t, out, `analyst_dependency_calls_total{operation="nats.publish",service="api",status="error"} 1`)
	expectLine(t, out, `analyst_dependency_circuit_open{operation="nats.publish",service="api"} 1`)

	deps.ObserveBreakerState("nats.publish", "half-open", "closed")
	expectLine(t, scrape(t, m.Handler()), `analyst_dependency_circuit_open{operation="nats.publish",service="api"} 0`)
}
