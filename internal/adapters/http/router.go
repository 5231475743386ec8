package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
	"github.com/kirillkom/docs-analyst/internal/observability/metrics"
)

const (
	serviceName      = "api"
	retrievalSurface = "http"
	maxUploadMemory  = 32 << 20
)

// Dependencies are the inbound ports the HTTP surface drives. Metrics and
// MCP are optional.
type Dependencies struct {
	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Sessions   ports.SessionService
	Queries    ports.QueryService
	Retriever  ports.Retriever
	Summarizer ports.Summarizer
	Stats      ports.StatsService

	Metrics *metrics.HTTPServerMetrics
	MCP     http.Handler
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, deps: deps, validator: validator}, nil
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(rt.validator.middleware)

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.json", rt.validator.serveDocument)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", rt.uploadDocument)
			r.Get("/", rt.listDocuments)
			r.Get("/stats", rt.documentStats)
			r.Get("/{document_id}", rt.getDocumentByID)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", rt.startSession)
			r.Get("/{session_id}/turns", rt.listTurns)
			r.Post("/{session_id}/queries", rt.askQuery)
		})
		r.Get("/retrieve", rt.retrieveDocuments)
		r.Post("/summaries", rt.summarize)
	})

	if rt.deps.MCP != nil {
		r.Handle("/mcp", rt.deps.MCP)
		r.Handle("/mcp/*", rt.deps.MCP)
	}

	var handler http.Handler = r
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
		mux.Handle("/", rt.deps.Metrics.Middleware(serviceName, handler))
		handler = mux
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart body is required"})
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.deps.Ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		// A document that was stored but not dispatched is still reported.
		if doc != nil {
			writeJSON(w, http.StatusServiceUnavailable, struct {
				Document *domain.Document `json:"document"`
				Error    string           `json:"error"`
			}{Document: doc, Error: err.Error()})
			return
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.deps.Documents.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) documentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.deps.Stats.DocumentStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stats == nil {
		stats = []domain.DocumentStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": stats})
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.deps.Documents.GetByID(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	session, err := rt.deps.Sessions.Start(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) listTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := rt.deps.Sessions.History(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (rt *Router) askQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	ctx := r.Context()
	if rt.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := rt.deps.Queries.Handle(ctx, chi.URLParam(r, "session_id"), req.Query)
	if err != nil {
		if stage, ok := domain.StageOf(err); ok && rt.deps.Metrics != nil {
			rt.deps.Metrics.RecordTurnFailure(serviceName, string(stage))
		}
		writeError(w, r, err)
		return
	}

	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordTurn(serviceName, metrics.TurnObservation{
			Intent:            string(resp.Intent),
			Grounded:          resp.Grounded,
			Citations:         len(resp.Citations),
			IntentFallback:    resp.IntentFallback,
			StrippedCitations: resp.StrippedCitations,
			Duration:          time.Since(start),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) retrieveDocuments(w http.ResponseWriter, r *http.Request) {
	var in domain.RetrieveDocumentsInput
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "query", query, &in.Query); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid parameter \"query\": %v", err)})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "top_k", query, &in.TopK); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid parameter \"top_k\": %v", err)})
		return
	}

	out, err := rt.deps.Retriever.RetrieveDocuments(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out.Results == nil {
		out.Results = []domain.RetrievedDocument{}
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordRetrieval(serviceName, retrievalSurface, len(out.Results))
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDs []string `json:"document_ids"`
	}
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	summary, err := rt.deps.Summarizer.SummarizeCorpus(r.Context(), req.DocumentIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decodeOptionalJSON accepts an empty body as the zero request.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
