package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docs-analyst/internal/adapters/http"
	mcpadapter "github.com/kirillkom/docs-analyst/internal/adapters/mcp"
	"github.com/kirillkom/docs-analyst/internal/bootstrap"
	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/observability/logging"
	"github.com/kirillkom/docs-analyst/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app.ObserveDependencies(metrics.NewDependencyMetrics(serviceName, httpMetrics.Registerer()))
	mcpServer := mcpadapter.NewServer(app.RetrieveUC, httpMetrics, serviceName)

	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Ingestor:   app.IngestUC,
		Documents:  app.Repo,
		Sessions:   app.SessionUC,
		Queries:    app.PlannerUC,
		Retriever:  app.RetrieveUC,
		Summarizer: app.SummarizeUC,
		Stats:      app.StatsUC,
		Metrics:    httpMetrics,
		MCP:        mcpServer.HTTPHandler(),
	})
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening",
			"port", cfg.APIPort,
			"ingest_mode", cfg.IngestMode,
			"vector_backend", cfg.VectorBackend,
			"llm_provider", cfg.LLMProvider,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
