package extractor

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

// Format parses one file type into ordered pages.
type Format interface {
	Supports(ext, mimeType string) bool
	Pages(ctx context.Context, raw []byte) ([]domain.Page, error)
}

// Selector implements ports.PageExtractor by reading the stored document and
// handing it to the first format that accepts its extension or mime type.
type Selector struct {
	storage ports.ObjectStorage
	formats []Format
}

func NewSelector(storage ports.ObjectStorage, formats ...Format) *Selector {
	return &Selector{storage: storage, formats: formats}
}

func (s *Selector) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	format, err := s.formatFor(doc)
	if err != nil {
		return nil, err
	}

	reader, err := s.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	pages, err := format.Pages(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("extract pages of %s: %w", doc.Filename, err)
	}
	return pages, nil
}

// Supports reports whether any configured format accepts filename.
func (s *Selector) Supports(filename, mimeType string) bool {
	_, err := s.formatFor(&domain.Document{Filename: filename, MimeType: mimeType})
	return err == nil
}

func (s *Selector) formatFor(doc *domain.Document) (Format, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	mimeType := strings.ToLower(strings.TrimSpace(strings.Split(doc.MimeType, ";")[0]))
	for _, f := range s.formats {
		if f.Supports(ext, mimeType) {
			return f, nil
		}
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "extract pages", fmt.Errorf("unsupported document format: %s", doc.Filename))
}
