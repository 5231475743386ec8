package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const DefaultEmbedBatchSize = 64

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	extractor  ports.PageExtractor
	chunker    ports.Chunker
	embedder   ports.Embedder
	index      ports.VectorIndex
	embedBatch int
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	embedBatch int,
) *ProcessDocumentUseCase {
	if embedBatch <= 0 {
		embedBatch = DefaultEmbedBatchSize
	}
	return &ProcessDocumentUseCase{
		repo:       repo,
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		index:      index,
		embedBatch: embedBatch,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, err := uc.processPipeline(ctx, documentID)
	if domain.IsKind(err, domain.ErrExtractionEmpty) {
		slog.WarnContext(ctx, "document_skipped", "document_id", documentID, "reason", err.Error())
		if markErr := uc.markStatus(ctx, documentID, domain.StatusSkipped, err.Error()); markErr != nil {
			return fmt.Errorf("set status=skipped: %w", markErr)
		}
		return nil
	}
	if err != nil {
		err = domain.WithStage(domain.StageIngestion, err)
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := checkEmbedderBinding(uc.index, uc.embedder); err != nil {
		return nil, err
	}

	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks := uc.chunker.Split(*doc, pages)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrExtractionEmpty, "chunk document", errors.New("all pages are empty after normalization"))
	}

	entries, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := uc.indexEntries(ctx, doc.ID, entries); err != nil {
		return nil, err
	}

	if err := uc.repo.SaveIngestResult(ctx, doc.ID, len(pages), len(chunks)); err != nil {
		return nil, fmt.Errorf("save ingest result: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	pages, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}
	for _, page := range pages {
		if strings.TrimSpace(page.Text) != "" {
			return pages, nil
		}
	}
	return nil, domain.WrapError(domain.ErrExtractionEmpty, "extract pages", fmt.Errorf("%s has no extractable text", doc.Filename))
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.IndexEntry, error) {
	entries := make([]domain.IndexEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.embedBatch {
		end := min(start+uc.embedBatch, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, 0, len(batch))
		for _, chunk := range batch {
			texts = append(texts, chunk.Text)
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
			)
		}
		for i, chunk := range batch {
			entries = append(entries, domain.IndexEntry{Chunk: chunk, Vector: vectors[i]})
		}
	}
	return entries, nil
}

// indexEntries replaces whatever the index holds for the document.
func (uc *ProcessDocumentUseCase) indexEntries(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if replacer, ok := uc.index.(ports.DocumentReplacer); ok {
		if err := replacer.ReplaceDocument(ctx, documentID, entries); err != nil {
			return fmt.Errorf("replace chunks in vector index: %w", err)
		}
	} else {
		if err := uc.index.RemoveDocument(ctx, documentID); err != nil {
			return fmt.Errorf("remove previous chunks: %w", err)
		}
		if err := uc.index.Add(ctx, entries); err != nil {
			return fmt.Errorf("add chunks to vector index: %w", err)
		}
	}
	if persistent, ok := uc.index.(ports.PersistentIndex); ok {
		if err := persistent.Persist(ctx); err != nil {
			return fmt.Errorf("persist vector index: %w", err)
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
