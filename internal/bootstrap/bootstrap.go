package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
	"github.com/kirillkom/docs-analyst/internal/core/usecase"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/chunking"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/extractor"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/extractor/htmltext"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/resilience"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/vector/memory"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	// Queue is nil when documents are processed inline.
	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Index     ports.VectorIndex
	Extractor *extractor.Selector

	IngestUC    *usecase.IngestDocumentUseCase
	ProcessUC   ports.DocumentProcessor
	RetrieveUC  *usecase.RetrieveUseCase
	SummarizeUC *usecase.SummarizeUseCase
	PlannerUC   *usecase.PlannerUseCase
	SessionUC   *usecase.SessionUseCase
	StatsUC     *usecase.StatsUseCase

	executors []*resilience.Executor
	closeFns  []func()
}

// New wires the server processes: Postgres for metadata and sessions, and the
// configured vector backend and dispatch mode.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app := &App{Config: cfg}
	app.onClose(func() { _ = db.Close() })

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	if err := app.wire(postgres.NewDocumentRepository(db), postgres.NewSessionRepository(db)); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// NewLocal wires the single-process CLI: SQLite for metadata and sessions,
// the file-backed memory index and inline processing.
func NewLocal(cfg config.Config) (*App, error) {
	cfg.IngestMode = config.IngestModeInline
	cfg.VectorBackend = config.VectorBackendMemory
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	app := &App{Config: cfg}
	app.onClose(func() { _ = store.Close() })

	if err := app.wire(store, store); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(repo ports.DocumentRepository, sessions ports.SessionStore) error {
	cfg := a.Config

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	llmExecutor := resilience.NewExecutor(llmPolicy(cfg))
	a.executors = append(a.executors, llmExecutor)
	embedder, generator := newLLM(cfg, llmExecutor)

	index, err := newVectorIndex(cfg, embedder.Identity())
	if err != nil {
		return err
	}

	selector := extractor.NewSelector(storage,
		pdf.NewExtractor(),
		spreadsheet.NewExtractor(),
		htmltext.NewExtractor(),
		plaintext.NewExtractor(),
	)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	processUC := usecase.NewProcessDocumentUseCase(repo, selector, chunker, embedder, index, cfg.EmbedBatchSize)

	var dispatcher ports.IngestionDispatcher
	if cfg.IngestMode == config.IngestModeInline {
		dispatcher = usecase.NewInlineDispatcher(processUC)
	} else {
		queueExecutor := resilience.NewExecutor(resilience.DefaultConfig())
		a.executors = append(a.executors, queueExecutor)
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: queueExecutor})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.onClose(queue.Close)
		a.Queue = queue
		dispatcher = queue
	}

	retrieveUC := usecase.NewRetrieveUseCase(embedder, index, cfg.SimilarityThreshold)
	summarizeUC := usecase.NewSummarizeUseCase(generator, index, cfg.SummaryBatchSize, cfg.SummaryWorkers)
	citations := usecase.NewCitationTracker(generator, usecase.CitationPolicy(cfg.CitationPolicy), cfg.CitationMaxRegenerations)

	plannerUC := usecase.NewPlannerUseCase(generator, sessions, cfg.HistoryTurns,
		usecase.NewRAGSpecialist(retrieveUC, citations, cfg.RAGTopK, cfg.SimilarityThreshold),
		usecase.NewComparatorSpecialist(citations),
		usecase.NewTimelineSpecialist(citations),
		usecase.NewAggregatorSpecialist(citations),
		usecase.NewSummarizerSpecialist(summarizeUC),
	)

	a.Repo = repo
	a.Index = index
	a.Extractor = selector
	a.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, dispatcher)
	a.ProcessUC = processUC
	a.RetrieveUC = retrieveUC
	a.SummarizeUC = summarizeUC
	a.PlannerUC = plannerUC
	a.SessionUC = usecase.NewSessionUseCase(sessions)
	a.StatsUC = usecase.NewStatsUseCase(index)
	return nil
}

func llmPolicy(cfg config.Config) resilience.Config {
	policy := resilience.DefaultConfig()
	policy.RetryMaxAttempts = cfg.LLMRetryAttempts
	policy.RateLimit = cfg.LLMRateLimit
	policy.RateBurst = cfg.LLMRateBurst
	return policy
}

func newLLM(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.TextGenerator) {
	if cfg.LLMProvider == config.ProviderOpenAI {
		client := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIGenModel, cfg.OpenAIEmbedModel, executor)
		return openai.NewEmbedder(client), openai.NewGenerator(client)
	}
	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	return ollama.NewEmbedder(client), ollama.NewGenerator(client)
}

func newVectorIndex(cfg config.Config, embedderIdentity string) (ports.VectorIndex, error) {
	if cfg.VectorBackend == config.VectorBackendMemory {
		index, err := memory.Open(cfg.IndexPath, embedderIdentity)
		if err != nil {
			return nil, fmt.Errorf("open memory index: %w", err)
		}
		return index, nil
	}
	return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedderIdentity), nil
}

// ObserveDependencies reports retries, call outcomes and breaker state of
// every guarded backend (LLM provider, NATS) to observer.
func (a *App) ObserveDependencies(observer resilience.Observer) {
	for _, executor := range a.executors {
		executor.SetObserver(observer)
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
