package usecase

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.IngestionDispatcher
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.IngestionDispatcher,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("filename is required"))
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Title:       documentTitle(filename),
		Filename:    filepath.Base(filename),
		MimeType:    mimeType,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		return doc, fmt.Errorf("dispatch document processing: %w", err)
	}

	return doc, nil
}

// IngestSource is one file of a batch; Open is called when its turn comes.
type IngestSource struct {
	Filename string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// IngestBatch uploads sources one by one and keeps going after skipped or
// failed documents. progress, when set, sees every document as it settles.
func (uc *IngestDocumentUseCase) IngestBatch(
	ctx context.Context,
	sources []IngestSource,
	progress func(filename string, doc *domain.Document, err error),
) (domain.IngestReport, error) {
	report := domain.IngestReport{
		Ingested: []domain.Document{},
		Skipped:  []domain.Document{},
		Failed:   []domain.IngestFailure{},
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		doc, err := uc.ingestOne(ctx, src)
		if progress != nil {
			progress(src.Filename, doc, err)
		}
		switch {
		case err != nil:
			report.Failed = append(report.Failed, domain.IngestFailure{Filename: src.Filename, Error: err.Error()})
		case doc.Status == domain.StatusSkipped:
			report.Skipped = append(report.Skipped, *doc)
		default:
			report.Ingested = append(report.Ingested, *doc)
		}
	}
	return report, nil
}

func (uc *IngestDocumentUseCase) ingestOne(ctx context.Context, src IngestSource) (*domain.Document, error) {
	body, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Filename, err)
	}
	defer body.Close()

	doc, err := uc.Upload(ctx, src.Filename, src.MimeType, body)
	if err != nil {
		return doc, err
	}

	settled, err := uc.repo.GetByID(ctx, doc.ID)
	if err != nil {
		return doc, fmt.Errorf("reload document: %w", err)
	}
	if settled.Status == domain.StatusFailed {
		return settled, domain.WithStage(domain.StageIngestion, fmt.Errorf("process %s: %s", src.Filename, settled.Error))
	}
	return settled, nil
}

// InlineDispatcher processes documents in the calling goroutine.
type InlineDispatcher struct {
	processor ports.DocumentProcessor
}

func NewInlineDispatcher(processor ports.DocumentProcessor) *InlineDispatcher {
	return &InlineDispatcher{processor: processor}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, documentID string) error {
	return d.processor.ProcessByID(ctx, documentID)
}

func documentTitle(filename string) string {
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(title) == "" {
		return base
	}
	return title
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
