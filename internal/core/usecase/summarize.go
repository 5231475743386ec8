package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const (
	DefaultSummaryBatchSize = 10
	DefaultSummaryWorkers   = 4
)

type SummarizeUseCase struct {
	generator ports.TextGenerator
	index     ports.VectorIndex
	batchSize int
	workers   int
}

func NewSummarizeUseCase(generator ports.TextGenerator, index ports.VectorIndex, batchSize, workers int) *SummarizeUseCase {
	if batchSize < 2 {
		batchSize = DefaultSummaryBatchSize
	}
	if workers <= 0 {
		workers = DefaultSummaryWorkers
	}
	return &SummarizeUseCase{
		generator: generator,
		index:     index,
		batchSize: batchSize,
		workers:   workers,
	}
}

func (uc *SummarizeUseCase) Summarize(ctx context.Context, texts []string) (string, error) {
	text, _, err := uc.reduce(ctx, texts)
	return text, err
}

// SummarizeCorpus summarizes indexed chunks in insertion order, optionally
// restricted to documentIDs. An empty selection yields a zero Summary.
func (uc *SummarizeUseCase) SummarizeCorpus(ctx context.Context, documentIDs []string) (domain.Summary, error) {
	chunks, err := uc.index.Chunks(ctx)
	if err != nil {
		return domain.Summary{}, domain.WithStage(domain.StageRetrieval, fmt.Errorf("list indexed chunks: %w", err))
	}

	wanted := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = struct{}{}
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if len(wanted) > 0 {
			if _, ok := wanted[chunk.DocumentID]; !ok {
				continue
			}
		}
		texts = append(texts, chunk.Text)
	}
	if len(texts) == 0 {
		return domain.Summary{DocumentIDs: documentIDs}, nil
	}

	text, rounds, err := uc.reduce(ctx, texts)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summary{
		Text:            text,
		ChunksProcessed: len(texts),
		Rounds:          rounds,
		DocumentIDs:     documentIDs,
	}, nil
}

// reduce maps batches of the work queue to summaries until one batch is left,
// then summarizes that batch. Every round divides the queue by batchSize.
func (uc *SummarizeUseCase) reduce(ctx context.Context, texts []string) (string, int, error) {
	if len(texts) == 0 {
		return "", 0, domain.WrapError(domain.ErrInvalidInput, "summarize", errors.New("no texts to summarize"))
	}

	queue := texts
	rounds := 0
	for len(queue) > uc.batchSize {
		next, err := uc.mapRound(ctx, queue)
		if err != nil {
			return "", rounds, err
		}
		queue = next
		rounds++
	}

	text, err := uc.generate(ctx, queue)
	if err != nil {
		return "", rounds, err
	}
	return text, rounds + 1, nil
}

func (uc *SummarizeUseCase) mapRound(ctx context.Context, queue []string) ([]string, error) {
	batches := make([][]string, 0, (len(queue)+uc.batchSize-1)/uc.batchSize)
	for start := 0; start < len(queue); start += uc.batchSize {
		end := min(start+uc.batchSize, len(queue))
		batches = append(batches, queue[start:end])
	}

	results := make([]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.workers)
	for i, batch := range batches {
		g.Go(func() error {
			text, err := uc.generate(gctx, batch)
			if err != nil {
				return fmt.Errorf("summarize batch %d: %w", i, err)
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (uc *SummarizeUseCase) generate(ctx context.Context, texts []string) (string, error) {
	text, err := uc.generator.Generate(ctx, buildSummaryPrompt(texts))
	if err != nil {
		return "", domain.WithStage(domain.StageGeneration, fmt.Errorf("generate summary: %w", err))
	}
	return text, nil
}
