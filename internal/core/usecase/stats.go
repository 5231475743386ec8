package usecase

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

type StatsUseCase struct {
	index ports.VectorIndex
}

func NewStatsUseCase(index ports.VectorIndex) *StatsUseCase {
	return &StatsUseCase{index: index}
}

// DocumentStats reports indexed chunk counts per document in insertion order.
// PageCount is the highest page that produced a chunk and TotalChars counts
// runes over all chunk texts, overlap included.
func (uc *StatsUseCase) DocumentStats(ctx context.Context) ([]domain.DocumentStats, error) {
	chunks, err := uc.index.Chunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed chunks: %w", err)
	}

	stats := make([]domain.DocumentStats, 0)
	positions := make(map[string]int)
	for _, chunk := range chunks {
		pos, ok := positions[chunk.DocumentID]
		if !ok {
			pos = len(stats)
			positions[chunk.DocumentID] = pos
			stats = append(stats, domain.DocumentStats{
				DocumentID: chunk.DocumentID,
				Title:      chunk.DocumentTitle,
			})
		}
		s := &stats[pos]
		s.ChunkCount++
		s.PageCount = max(s.PageCount, chunk.PageNumber)
		s.TotalChars += utf8.RuneCountInString(chunk.Text)
	}
	return stats, nil
}
