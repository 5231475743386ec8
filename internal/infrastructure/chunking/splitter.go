package chunking

import (
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts each page into overlapping rune windows. Chunks never cross a
// page boundary.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(doc domain.Document, pages []domain.Page) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(pages))
	for _, page := range pages {
		out = append(out, s.splitPage(doc, page)...)
	}
	return out
}

func (s *Splitter) splitPage(doc domain.Document, page domain.Page) []domain.Chunk {
	runes := []rune(NormalizePage(page.Text))
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]domain.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		index := len(out)
		out = append(out, domain.Chunk{
			ID:                  domain.ChunkID(doc.ID, page.Number, index),
			DocumentID:          doc.ID,
			DocumentTitle:       doc.Title,
			PageNumber:          page.Number,
			Index:               index,
			StartOffset:         start,
			EndOffset:           end,
			Text:                string(runes[start:end]),
			OverlapsPredecessor: index > 0,
		})
		if end == len(runes) {
			break
		}
	}
	return out
}

// NormalizePage unifies line endings and trims surrounding whitespace.
func NormalizePage(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
