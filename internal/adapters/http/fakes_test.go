package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

type ingestFake struct {
	err error
	doc *domain.Document
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return f.doc, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_file.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct {
	err  error
	docs []domain.Document
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a.txt", MimeType: "text/plain", StoragePath: "a", Status: domain.StatusReady}, nil
}

func (f docsFake) List(context.Context) ([]domain.Document, error) {
	return f.docs, f.err
}

type sessionsFake struct {
	err     error
	turns   []domain.Turn
	started []string
}

func (f *sessionsFake) Start(_ context.Context, userID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, userID)
	return &domain.Session{ID: "sess-1", UserID: userID}, nil
}

func (f *sessionsFake) History(context.Context, string) ([]domain.Turn, error) {
	return f.turns, f.err
}

type queriesFake struct {
	err       error
	resp      *domain.Response
	sessionID string
	query     string
	deadline  bool
}

func (f *queriesFake) Handle(ctx context.Context, sessionID, query string) (*domain.Response, error) {
	f.sessionID = sessionID
	f.query = query
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &domain.Response{SessionID: sessionID, TurnIndex: 1, Intent: domain.IntentQuery, Text: "ok"}, nil
}

type retrieverFake struct {
	err error
	out domain.RetrieveDocumentsOutput
	in  domain.RetrieveDocumentsInput
}

func (f *retrieverFake) Retrieve(context.Context, string, int, float64) ([]domain.Evidence, error) {
	return nil, f.err
}

func (f *retrieverFake) RetrieveDocuments(_ context.Context, in domain.RetrieveDocumentsInput) (domain.RetrieveDocumentsOutput, error) {
	if err := in.Validate(); err != nil {
		return domain.RetrieveDocumentsOutput{}, err
	}
	f.in = in
	return f.out, f.err
}

type summarizerFake struct {
	err         error
	documentIDs []string
}

func (f *summarizerFake) Summarize(context.Context, []string) (string, error) {
	return "", f.err
}

func (f *summarizerFake) SummarizeCorpus(_ context.Context, documentIDs []string) (domain.Summary, error) {
	f.documentIDs = documentIDs
	if f.err != nil {
		return domain.Summary{}, f.err
	}
	return domain.Summary{Text: "summary", ChunksProcessed: 3, Rounds: 1, DocumentIDs: documentIDs}, nil
}

type statsFake struct{}

func (statsFake) DocumentStats(context.Context) ([]domain.DocumentStats, error) {
	return []domain.DocumentStats{{DocumentID: "doc-1", Title: "report", ChunkCount: 4, PageCount: 2, TotalChars: 120}}, nil
}

func testDependencies() Dependencies {
	return Dependencies{
		Ingestor:   ingestFake{},
		Documents:  docsFake{},
		Sessions:   &sessionsFake{},
		Queries:    &queriesFake{},
		Retriever:  &retrieverFake{},
		Summarizer: &summarizerFake{},
		Stats:      statsFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}
