package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

type CitationPolicy string

const (
	CitationPolicyStrip      CitationPolicy = "strip"
	CitationPolicyRegenerate CitationPolicy = "regenerate"
)

var citationMarker = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// AssignCitations numbers evidence 1..N in order.
func AssignCitations(evidence []domain.Evidence) []domain.Citation {
	citations := make([]domain.Citation, 0, len(evidence))
	for i, ev := range evidence {
		citations = append(citations, domain.Citation{
			ID:            i + 1,
			ChunkID:       ev.Chunk.ID,
			DocumentID:    ev.Chunk.DocumentID,
			DocumentTitle: ev.Chunk.DocumentTitle,
			PageNumber:    ev.Chunk.PageNumber,
			Snippet:       domain.Snippet(ev.Chunk.Text),
		})
	}
	return citations
}

func RenderCitation(c domain.Citation) domain.CitationView {
	return domain.CitationView{
		Document: c.DocumentTitle,
		Page:     c.PageNumber,
		Snippet:  c.Snippet,
	}
}

// CitationMarkers returns every id referenced by [n] or [n, m] markers, in
// order of appearance.
func CitationMarkers(text string) []int {
	ids := make([]int, 0)
	for _, match := range citationMarker.FindAllStringSubmatch(text, -1) {
		ids = append(ids, parseMarkerIDs(match[1])...)
	}
	return ids
}

// DanglingCitations returns the referenced ids outside 1..n.
func DanglingCitations(text string, n int) []int {
	dangling := make([]int, 0)
	for _, id := range CitationMarkers(text) {
		if id < 1 || id > n {
			dangling = append(dangling, id)
		}
	}
	return dangling
}

// StripDanglingCitations removes ids outside 1..n from markers, dropping a
// marker entirely when none of its ids survive. It returns the number of ids
// removed.
func StripDanglingCitations(text string, n int) (string, int) {
	matches := citationMarker.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	var b strings.Builder
	removed := 0
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		last = m[1]

		ids := parseMarkerIDs(text[m[2]:m[3]])
		valid := make([]string, 0, len(ids))
		for _, id := range ids {
			if id < 1 || id > n {
				removed++
				continue
			}
			valid = append(valid, strconv.Itoa(id))
		}
		if len(valid) == len(ids) {
			b.WriteString(text[m[0]:m[1]])
			continue
		}
		if len(valid) == 0 {
			trimmed := strings.TrimRight(b.String(), " ")
			b.Reset()
			b.WriteString(trimmed)
			continue
		}
		b.WriteString("[" + strings.Join(valid, ", ") + "]")
	}
	b.WriteString(text[last:])
	return b.String(), removed
}

// overflowedCitationID stands in for a marker id too large for int. It is
// outside every 1..n range, so such markers are always dangling.
const overflowedCitationID = -1

func parseMarkerIDs(raw string) []int {
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			id = overflowedCitationID
		}
		ids = append(ids, id)
	}
	return ids
}

// CitationTracker enforces that generated text only cites evidence the
// generator was shown.
type CitationTracker struct {
	generator        ports.TextGenerator
	policy           CitationPolicy
	maxRegenerations int
}

func NewCitationTracker(generator ports.TextGenerator, policy CitationPolicy, maxRegenerations int) *CitationTracker {
	if policy != CitationPolicyRegenerate {
		policy = CitationPolicyStrip
	}
	if maxRegenerations < 0 {
		maxRegenerations = 0
	}
	return &CitationTracker{
		generator:        generator,
		policy:           policy,
		maxRegenerations: maxRegenerations,
	}
}

// Generate runs prompt against evidenceCount numbered sources and returns text
// whose markers all resolve, plus the number of ids that had to be stripped.
func (t *CitationTracker) Generate(ctx context.Context, prompt string, evidenceCount int) (string, int, error) {
	text, err := t.generate(ctx, prompt)
	if err != nil {
		return "", 0, err
	}

	dangling := DanglingCitations(text, evidenceCount)
	if t.policy == CitationPolicyRegenerate {
		for attempt := 1; len(dangling) > 0 && attempt <= t.maxRegenerations; attempt++ {
			slog.WarnContext(ctx, "dangling_citation_regenerate",
				"attempt", attempt,
				"dangling", dangling,
				"sources", evidenceCount,
			)
			text, err = t.generate(ctx, buildCitationRepairPrompt(prompt, evidenceCount))
			if err != nil {
				return "", 0, err
			}
			dangling = DanglingCitations(text, evidenceCount)
		}
	}
	if len(dangling) == 0 {
		return text, 0, nil
	}

	for _, id := range dangling {
		slog.WarnContext(ctx, "dangling_citation",
			"citation_id", id,
			"sources", evidenceCount,
			"error", domain.ErrDanglingCitation.Error(),
		)
	}
	stripped, removed := StripDanglingCitations(text, evidenceCount)
	return stripped, removed, nil
}

func (t *CitationTracker) generate(ctx context.Context, prompt string) (string, error) {
	text, err := t.generator.Generate(ctx, prompt)
	if err != nil {
		return "", domain.WithStage(domain.StageGeneration, fmt.Errorf("generate answer: %w", err))
	}
	return text, nil
}
