package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const DefaultSimilarityThreshold = 0.1

type RetrieveUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	threshold float64
}

// NewRetrieveUseCase binds the retriever to the embedder used at ingestion.
// threshold applies to RetrieveDocuments; Retrieve takes it per call.
func NewRetrieveUseCase(embedder ports.Embedder, index ports.VectorIndex, threshold float64) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int, threshold float64) ([]domain.Evidence, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("no input"))
	}
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	if err := checkEmbedderBinding(uc.index, uc.embedder); err != nil {
		return nil, domain.WithStage(domain.StageRetrieval, err)
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WithStage(domain.StageRetrieval, fmt.Errorf("embed query: %w", err))
	}

	hits, err := uc.index.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, domain.WithStage(domain.StageRetrieval, fmt.Errorf("search vector index: %w", err))
	}

	evidence := make([]domain.Evidence, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		evidence = append(evidence, domain.Evidence{
			Chunk: hit.Chunk,
			Score: hit.Score,
			Rank:  len(evidence) + 1,
		})
	}
	return evidence, nil
}

func (uc *RetrieveUseCase) RetrieveDocuments(ctx context.Context, in domain.RetrieveDocumentsInput) (domain.RetrieveDocumentsOutput, error) {
	if err := in.Validate(); err != nil {
		return domain.RetrieveDocumentsOutput{}, err
	}

	evidence, err := uc.Retrieve(ctx, in.Query, in.TopK, uc.threshold)
	if err != nil {
		return domain.RetrieveDocumentsOutput{}, err
	}

	out := domain.RetrieveDocumentsOutput{Results: make([]domain.RetrievedDocument, 0, len(evidence))}
	for _, ev := range evidence {
		out.Results = append(out.Results, domain.RetrievedDocument{
			ChunkID:  ev.Chunk.ID,
			Document: ev.Chunk.DocumentTitle,
			Page:     ev.Chunk.PageNumber,
			Score:    ev.Score,
			Snippet:  domain.Snippet(ev.Chunk.Text),
		})
	}
	if err := out.Validate(in); err != nil {
		return domain.RetrieveDocumentsOutput{}, fmt.Errorf("validate retrieve_documents output: %w", err)
	}
	return out, nil
}

// checkEmbedderBinding refuses to mix vectors from different embedding
// functions in one index.
func checkEmbedderBinding(index ports.VectorIndex, embedder ports.Embedder) error {
	bound, ok := index.(ports.BoundIndex)
	if !ok {
		return nil
	}
	identity := bound.EmbedderIdentity()
	if identity == "" || identity == embedder.Identity() {
		return nil
	}
	return domain.WrapError(
		domain.ErrEmbedderMismatch,
		"check embedder binding",
		fmt.Errorf("index built with %q, embedder is %q", identity, embedder.Identity()),
	)
}

// dedupeEvidence keeps the first occurrence of each chunk and renumbers ranks.
func dedupeEvidence(evidence []domain.Evidence) []domain.Evidence {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]domain.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		if _, ok := seen[ev.Chunk.ID]; ok {
			continue
		}
		seen[ev.Chunk.ID] = struct{}{}
		ev.Rank = len(out) + 1
		out = append(out, ev)
	}
	return out
}
