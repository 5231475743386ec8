package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestResult(ctx context.Context, id string, pageCount, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor turns a stored document into ordered pages.
type PageExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
}

// Chunker splits pages into overlapping chunks with page provenance.
type Chunker interface {
	Split(doc domain.Document, pages []domain.Page) []domain.Chunk
}

// Embedder builds vectors for chunks and query text. Identity names the
// embedding function so indexes can refuse vectors from another one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Identity() string
}

// VectorIndex stores chunk vectors with their metadata and answers
// nearest-neighbour queries.
type VectorIndex interface {
	Add(ctx context.Context, entries []domain.IndexEntry) error
	Search(ctx context.Context, query []float32, k int) ([]domain.SearchHit, error)
	Chunks(ctx context.Context) ([]domain.Chunk, error)
	RemoveDocument(ctx context.Context, documentID string) error
}

// BoundIndex is implemented by indexes that record which embedder filled them.
type BoundIndex interface {
	EmbedderIdentity() string
}

// DocumentReplacer swaps a document's entries in one step: a rejected batch
// keeps the previous entries and searches never see the document missing.
type DocumentReplacer interface {
	ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error
}

// PersistentIndex is implemented by process-local indexes that flush to disk.
type PersistentIndex interface {
	Persist(ctx context.Context) error
}

// TextGenerator is the external generation capability.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionStore persists sessions and their append-only turn log.
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error)
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
}
