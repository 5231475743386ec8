package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

func writeEvidence(b *strings.Builder, evidence []domain.Evidence) {
	for idx, ev := range evidence {
		fmt.Fprintf(b, "[%d] %s, page %d\n%s\n\n", idx+1, ev.Chunk.DocumentTitle, ev.Chunk.PageNumber, ev.Chunk.Text)
	}
}

func buildAnswerPrompt(question string, evidence []domain.Evidence) string {
	var sources strings.Builder
	writeEvidence(&sources, evidence)

	return fmt.Sprintf(`Answer the user question only from the numbered sources below.
Cite every claim with the source number in square brackets, for example [1] or [1, 3].
Do not cite numbers that are not listed. If the sources are insufficient, say it directly.

Question:
%s

Sources:
%s`, question, sources.String())
}

func buildComparePrompt(question string, evidence []domain.Evidence, groups []domain.DocumentGroup) string {
	var sources strings.Builder
	writeEvidence(&sources, evidence)

	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		ids := make([]string, 0, len(g.CitationIDs))
		for _, id := range g.CitationIDs {
			ids = append(ids, fmt.Sprintf("[%d]", id))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", g.DocumentTitle, strings.Join(ids, " ")))
	}

	return fmt.Sprintf(`Compare how the documents below address the user question.
Point out agreements and differences document by document.
Cite every claim with the source number in square brackets. Do not cite numbers that are not listed.

Question:
%s

Documents and their sources:
%s

Sources:
%s`, question, strings.Join(lines, "\n"), sources.String())
}

func buildTimelinePrompt(question string, evidence []domain.Evidence, events []domain.TimelineEvent) string {
	var sources strings.Builder
	writeEvidence(&sources, evidence)

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		when := "undated"
		if ev.Mention != "" {
			when = ev.Mention
		}
		lines = append(lines, fmt.Sprintf("- [%d] %s", ev.CitationID, when))
	}

	return fmt.Sprintf(`Build a chronological account that answers the user question.
The sources are already in chronological order; keep that order.
Cite every event with the source number in square brackets. Do not cite numbers that are not listed.

Question:
%s

Detected dates:
%s

Sources:
%s`, question, strings.Join(lines, "\n"), sources.String())
}

func buildAggregatePrompt(question string, evidence []domain.Evidence) string {
	var sources strings.Builder
	writeEvidence(&sources, evidence)

	return fmt.Sprintf(`Combine the facts from all sources below into one consolidated answer.
Merge repeated facts and keep figures exact.
Cite every claim with the source number in square brackets. Do not cite numbers that are not listed.

Question:
%s

Sources:
%s`, question, sources.String())
}

func buildSummaryPrompt(texts []string) string {
	var b strings.Builder
	for idx, text := range texts {
		fmt.Fprintf(&b, "--- passage %d ---\n%s\n\n", idx+1, strings.TrimSpace(text))
	}

	return `Summarize the passages below into one concise summary.
Keep names, dates and figures. Do not add facts that are not in the passages.

Passages:
` + b.String()
}

func buildClassificationPrompt(query string, history []domain.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		if turn.Status != domain.TurnAnswered {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Intent, strings.TrimSpace(turn.Query)))
	}
	if len(lines) == 0 {
		lines = append(lines, "(empty)")
	}

	labels := make([]string, 0, len(domain.Intents()))
	for _, intent := range domain.Intents() {
		labels = append(labels, string(intent))
	}

	return fmt.Sprintf(`You route questions about a document collection.
Reply with exactly one label from: %s.
QUERY: a factual question. SUMMARIZE: summarize documents. COMPARE: compare documents.
TIMELINE: order events in time. AGGREGATE: combine facts across documents.

Previous questions:
%s

Question:
%s
`, strings.Join(labels, ", "), strings.Join(lines, "\n"), query)
}

func buildCitationRepairPrompt(prompt string, evidenceCount int) string {
	return fmt.Sprintf(`%s
Your previous answer cited sources that do not exist. Only sources [1] to [%d] exist.
Answer again and cite only those.`, prompt, evidenceCount)
}
