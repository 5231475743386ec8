package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

// Extractor reads UTF-8 text. Form feeds separate pages.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(ext, mimeType string) bool {
	switch ext {
	case ".txt", ".md", ".markdown", ".text", ".csv", ".log":
		return true
	}
	return strings.HasPrefix(mimeType, "text/plain") || mimeType == "text/markdown"
}

func (e *Extractor) Pages(_ context.Context, raw []byte) ([]domain.Page, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("plain text is not valid UTF-8")
	}

	parts := strings.Split(string(raw), "\f")
	pages := make([]domain.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, domain.Page{Number: i + 1, Text: part})
	}
	return pages, nil
}
