package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

func newProcessFixture(body string) (*docRepoFake, *storageFake, *scriptedIndex, *keywordEmbedder) {
	repo := newDocRepoFake()
	storage := newStorageFake()
	storage.objects["doc-1_report.txt"] = body
	repo.docs["doc-1"] = &domain.Document{
		ID:          "doc-1",
		Title:       "report",
		Filename:    "report.txt",
		StoragePath: "doc-1_report.txt",
		Status:      domain.StatusUploaded,
	}
	return repo, storage, &scriptedIndex{identity: "fake:keywords"}, newKeywordEmbedder("revenue", "cost")
}

func TestProcessByIDSuccess(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture("revenue up\ncost down\nrevenue flat\fcost again")
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 2)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	doc := repo.docs["doc-1"]
	if doc.Status != domain.StatusReady {
		t.Fatalf("expected ready, got %s", doc.Status)
	}
	if doc.PageCount != 2 || doc.ChunkCount != 4 {
		t.Fatalf("expected 2 pages and 4 chunks, got %d/%d", doc.PageCount, doc.ChunkCount)
	}
	if len(embedder.calls) != 2 || len(embedder.calls[0]) != 2 || len(embedder.calls[1]) != 2 {
		t.Fatalf("expected two embed batches of 2, got %v", embedder.calls)
	}
	if len(index.added) != 4 || index.added[3].Chunk.ID != "doc-1:p2:c0" {
		t.Fatalf("unexpected index entries: %+v", index.added)
	}
	if len(index.removed) != 1 || index.removed[0] != "doc-1" {
		t.Fatalf("expected previous entries removed first, got %v", index.removed)
	}
	if index.persisted != 1 {
		t.Fatalf("expected one persist, got %d", index.persisted)
	}
	if repo.statusCalls[0].status != domain.StatusProcessing {
		t.Fatalf("expected processing first, got %+v", repo.statusCalls)
	}
}

func TestProcessByIDReprocessDoesNotDuplicate(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture("revenue up\ncost down")
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	for i := 0; i < 2; i++ {
		if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
			t.Fatalf("ProcessByID() run %d error = %v", i, err)
		}
	}
	if len(index.chunks) != 2 {
		t.Fatalf("expected 2 chunks after re-processing, got %d", len(index.chunks))
	}
}

func TestProcessByIDEmptyExtractionSkips(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture(" \n\f\t")
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.lastStatus() != domain.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", repo.statusCalls)
	}
	if len(embedder.calls) != 0 || len(index.added) != 0 {
		t.Fatalf("expected no embedding or indexing for skipped document")
	}
}

func TestProcessByIDEmbedFailureMarksFailed(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture("revenue up")
	embedder.err = domain.WrapError(domain.ErrGenerationUnavailable, "ollama.embed", errors.New("503"))
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if stage, ok := domain.StageOf(err); !ok || stage != domain.StageIngestion {
		t.Fatalf("expected ingestion stage, got %v", err)
	}
	if repo.lastStatus() != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls)
	}
	if !strings.Contains(repo.docs["doc-1"].Error, "embed chunks") {
		t.Fatalf("expected error message saved, got %q", repo.docs["doc-1"].Error)
	}
}

func TestProcessByIDRefusesForeignEmbedder(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture("revenue up")
	index.identity = "other:model"
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrEmbedderMismatch) {
		t.Fatalf("expected embedder mismatch, got %v", err)
	}
	if len(index.added) != 0 {
		t.Fatalf("expected index untouched")
	}
}

func TestProcessByIDMissingDocument(t *testing.T) {
	repo, storage, index, embedder := newProcessFixture("x")
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	err := uc.ProcessByID(context.Background(), "nope")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// replacingIndex swaps a document's chunks in one call and rejects the swap
// when err is set, keeping the previous chunks.
type replacingIndex struct {
	scriptedIndex
	replaced   []string
	replaceErr error
}

func (f *replacingIndex) ReplaceDocument(_ context.Context, documentID string, entries []domain.IndexEntry) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = append(f.replaced, documentID)
	kept := f.chunks[:0]
	for _, chunk := range f.chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	f.chunks = kept
	f.added = append(f.added, entries...)
	for _, entry := range entries {
		f.chunks = append(f.chunks, entry.Chunk)
	}
	return nil
}

func TestProcessByIDReplacesDocumentAtomicallyWhenSupported(t *testing.T) {
	repo, storage, _, embedder := newProcessFixture("revenue up\ncost down")
	index := &replacingIndex{scriptedIndex: scriptedIndex{identity: "fake:keywords"}}
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(index.replaced) != 1 || index.replaced[0] != "doc-1" {
		t.Fatalf("expected one replace of doc-1, got %v", index.replaced)
	}
	if len(index.removed) != 0 {
		t.Fatalf("replace must not be split into remove and add, removed %v", index.removed)
	}
	if len(index.chunks) != 2 || index.persisted != 1 {
		t.Fatalf("unexpected index state: %d chunks, %d persists", len(index.chunks), index.persisted)
	}
}

func TestProcessByIDRejectedReplaceKeepsPreviousChunks(t *testing.T) {
	repo, storage, _, embedder := newProcessFixture("revenue up\ncost down")
	previous := domain.Chunk{ID: "doc-1:p1:c0", DocumentID: "doc-1", Text: "old"}
	index := &replacingIndex{
		scriptedIndex: scriptedIndex{identity: "fake:keywords", chunks: []domain.Chunk{previous}},
		replaceErr:    domain.WrapError(domain.ErrDimensionMismatch, "index replace document", errors.New("3 != 2")),
	}
	uc := NewProcessDocumentUseCase(repo, &pageExtractorFake{storage: storage}, lineChunker{}, embedder, index, 0)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if len(index.chunks) != 1 || index.chunks[0].Text != "old" {
		t.Fatalf("previous chunks must survive a rejected replace, got %+v", index.chunks)
	}
	if repo.lastStatus() != domain.StatusFailed {
		t.Fatalf("expected failed status, got %+v", repo.statusCalls)
	}
}
