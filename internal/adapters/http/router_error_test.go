package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "handle", errors.New("no input")), http.StatusBadRequest},
		{"document not found", domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=x")), http.StatusNotFound},
		{"session not found", domain.WrapError(domain.ErrSessionNotFound, "get", errors.New("id=x")), http.StatusNotFound},
		{"embedder mismatch", domain.WithStage(domain.StageRetrieval, domain.WrapError(domain.ErrEmbedderMismatch, "retrieve", errors.New("a != b"))), http.StatusConflict},
		{"generation unavailable", domain.WithStage(domain.StageGeneration, domain.WrapError(domain.ErrGenerationUnavailable, "generate", errors.New("503"))), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("handle: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Fatalf("mapErrorToHTTPStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAskQueryMapsInvalidInputTo400(t *testing.T) {
	deps := testDependencies()
	deps.Queries = &queriesFake{err: domain.WrapError(domain.ErrInvalidInput, "handle query", errors.New("no input"))}
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/queries", bytes.NewBufferString(`{"query":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskQueryRejectsBodyWithoutQuery(t *testing.T) {
	queries := &queriesFake{}
	deps := testDependencies()
	deps.Queries = queries
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/queries", bytes.NewBufferString(`{"question":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if queries.sessionID != "" {
		t.Fatalf("planner must not be called for an invalid body")
	}
}

func TestAskQueryReportsFailureStage(t *testing.T) {
	deps := testDependencies()
	deps.Queries = &queriesFake{err: domain.WithStage(
		domain.StageGeneration,
		domain.WrapError(domain.ErrGenerationUnavailable, "generate answer", errors.New("connection refused")),
	)}
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/queries", bytes.NewBufferString(`{"query":"what changed?"}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stage != string(domain.StageGeneration) {
		t.Fatalf("expected generation stage, got %+v", resp)
	}
}

func TestGetDocumentByIDReturns404ForNotFound(t *testing.T) {
	deps := testDependencies()
	deps.Documents = docsFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing"))}
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListTurnsReturns404ForUnknownSession(t *testing.T) {
	deps := testDependencies()
	deps.Sessions = &sessionsFake{err: domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New("id=nope"))}
	handler := newTestHandler(t, config.Config{}, deps)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/nope/turns", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}
