package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// IngestionDispatcher hands an uploaded document to processing.
type IngestionDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// Retriever maps a query to ranked, thresholded evidence.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]domain.Evidence, error)
	RetrieveDocuments(ctx context.Context, in domain.RetrieveDocumentsInput) (domain.RetrieveDocumentsOutput, error)
}

// Summarizer runs map-reduce summarization over the indexed corpus.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
	SummarizeCorpus(ctx context.Context, documentIDs []string) (domain.Summary, error)
}

// Specialist is one step of a routed chain.
type Specialist interface {
	ID() domain.SpecialistID
	Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error)
}

// QueryService routes a user turn through the planner.
type QueryService interface {
	Handle(ctx context.Context, sessionID, query string) (*domain.Response, error)
}

// SessionService starts sessions and exposes their turn log read-only.
type SessionService interface {
	Start(ctx context.Context, userID string) (*domain.Session, error)
	History(ctx context.Context, sessionID string) ([]domain.Turn, error)
}

// StatsService reports per-document index statistics.
type StatsService interface {
	DocumentStats(ctx context.Context) ([]domain.DocumentStats, error)
}
