package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const (
	NoGroundedAnswer     = "No grounded answer is available: none of the indexed documents contain evidence relevant to this question."
	ComparisonImpossible = "Comparison is not possible: the relevant evidence comes from a single document."
	NoDocumentsAnswer    = "There are no indexed documents to summarize."
)

func noGroundedOutput(id domain.SpecialistID) domain.SpecialistOutput {
	return domain.SpecialistOutput{
		Specialist: id,
		Text:       NoGroundedAnswer,
		Evidence:   []domain.Evidence{},
	}
}

func upstreamEvidence(in domain.SpecialistInput) []domain.Evidence {
	if in.Upstream == nil {
		return nil
	}
	return dedupeEvidence(in.Upstream.Evidence)
}

type RAGSpecialist struct {
	retriever ports.Retriever
	citations *CitationTracker
	topK      int
	threshold float64
}

func NewRAGSpecialist(retriever ports.Retriever, citations *CitationTracker, topK int, threshold float64) *RAGSpecialist {
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	return &RAGSpecialist{
		retriever: retriever,
		citations: citations,
		topK:      topK,
		threshold: threshold,
	}
}

func (s *RAGSpecialist) ID() domain.SpecialistID {
	return domain.SpecialistRAG
}

func (s *RAGSpecialist) Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error) {
	evidence, err := s.retriever.Retrieve(ctx, in.Query, s.topK, s.threshold)
	if err != nil {
		return domain.SpecialistOutput{}, domain.WithStage(domain.StageRetrieval, fmt.Errorf("retrieve evidence: %w", err))
	}
	if len(evidence) == 0 {
		return noGroundedOutput(s.ID()), nil
	}

	text, stripped, err := s.citations.Generate(ctx, buildAnswerPrompt(in.Query, evidence), len(evidence))
	if err != nil {
		return domain.SpecialistOutput{}, err
	}
	return domain.SpecialistOutput{
		Specialist:        s.ID(),
		Text:              text,
		Evidence:          evidence,
		Grounded:          true,
		StrippedCitations: stripped,
	}, nil
}

type ComparatorSpecialist struct {
	citations *CitationTracker
}

func NewComparatorSpecialist(citations *CitationTracker) *ComparatorSpecialist {
	return &ComparatorSpecialist{citations: citations}
}

func (s *ComparatorSpecialist) ID() domain.SpecialistID {
	return domain.SpecialistComparator
}

func (s *ComparatorSpecialist) Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error) {
	evidence := upstreamEvidence(in)
	if len(evidence) == 0 {
		return noGroundedOutput(s.ID()), nil
	}

	groups := GroupByDocument(evidence)
	if len(groups) < 2 {
		return domain.SpecialistOutput{
			Specialist: s.ID(),
			Text:       ComparisonImpossible,
			Evidence:   evidence,
			Comparison: groups,
		}, nil
	}

	text, stripped, err := s.citations.Generate(ctx, buildComparePrompt(in.Query, evidence, groups), len(evidence))
	if err != nil {
		return domain.SpecialistOutput{}, err
	}
	return domain.SpecialistOutput{
		Specialist:        s.ID(),
		Text:              text,
		Evidence:          evidence,
		Grounded:          true,
		Comparison:        groups,
		StrippedCitations: stripped,
	}, nil
}

// GroupByDocument groups citation ids (1-based positions in evidence) by
// document in first-appearance order.
func GroupByDocument(evidence []domain.Evidence) []domain.DocumentGroup {
	groups := make([]domain.DocumentGroup, 0)
	positions := make(map[string]int)
	for i, ev := range evidence {
		pos, ok := positions[ev.Chunk.DocumentID]
		if !ok {
			pos = len(groups)
			positions[ev.Chunk.DocumentID] = pos
			groups = append(groups, domain.DocumentGroup{
				DocumentID:    ev.Chunk.DocumentID,
				DocumentTitle: ev.Chunk.DocumentTitle,
			})
		}
		groups[pos].CitationIDs = append(groups[pos].CitationIDs, i+1)
	}
	return groups
}

type AggregatorSpecialist struct {
	citations *CitationTracker
}

func NewAggregatorSpecialist(citations *CitationTracker) *AggregatorSpecialist {
	return &AggregatorSpecialist{citations: citations}
}

func (s *AggregatorSpecialist) ID() domain.SpecialistID {
	return domain.SpecialistAggregator
}

func (s *AggregatorSpecialist) Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error) {
	evidence := DedupeOverlapping(upstreamEvidence(in))
	if len(evidence) == 0 {
		return noGroundedOutput(s.ID()), nil
	}

	text, stripped, err := s.citations.Generate(ctx, buildAggregatePrompt(in.Query, evidence), len(evidence))
	if err != nil {
		return domain.SpecialistOutput{}, err
	}
	return domain.SpecialistOutput{
		Specialist:        s.ID(),
		Text:              text,
		Evidence:          evidence,
		Grounded:          true,
		StrippedCitations: stripped,
	}, nil
}

// DedupeOverlapping drops evidence whose document and page were already
// covered by a better-ranked item. Chunks never span pages, so a page range
// overlap is a shared page.
func DedupeOverlapping(evidence []domain.Evidence) []domain.Evidence {
	type pageKey struct {
		documentID string
		page       int
	}

	seen := make(map[pageKey]struct{}, len(evidence))
	out := make([]domain.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		key := pageKey{documentID: ev.Chunk.DocumentID, page: ev.Chunk.PageNumber}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ev.Rank = len(out) + 1
		out = append(out, ev)
	}
	return out
}

type SummarizerSpecialist struct {
	summarizer ports.Summarizer
}

func NewSummarizerSpecialist(summarizer ports.Summarizer) *SummarizerSpecialist {
	return &SummarizerSpecialist{summarizer: summarizer}
}

func (s *SummarizerSpecialist) ID() domain.SpecialistID {
	return domain.SpecialistSummarizer
}

func (s *SummarizerSpecialist) Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error) {
	summary, err := s.summarizer.SummarizeCorpus(ctx, in.DocumentIDs)
	if err != nil {
		return domain.SpecialistOutput{}, fmt.Errorf("summarize corpus: %w", err)
	}
	if summary.ChunksProcessed == 0 {
		return domain.SpecialistOutput{
			Specialist: s.ID(),
			Text:       NoDocumentsAnswer,
			Evidence:   []domain.Evidence{},
		}, nil
	}
	return domain.SpecialistOutput{
		Specialist: s.ID(),
		Text:       summary.Text,
		Evidence:   []domain.Evidence{},
		Grounded:   true,
	}, nil
}

var (
	_ ports.Specialist = (*RAGSpecialist)(nil)
	_ ports.Specialist = (*ComparatorSpecialist)(nil)
	_ ports.Specialist = (*AggregatorSpecialist)(nil)
	_ ports.Specialist = (*SummarizerSpecialist)(nil)
)
