package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/usecase"
)

func formatIngestProgress(filename string, doc *domain.Document, err error) string {
	switch {
	case err != nil:
		return fmt.Sprintf("failed   %s: %v", filename, err)
	case doc.Status == domain.StatusSkipped:
		return fmt.Sprintf("skipped  %s: no extractable text", filename)
	default:
		return fmt.Sprintf("ingested %s (%s, %d pages, %d chunks)", filename, doc.ID, doc.PageCount, doc.ChunkCount)
	}
}

// formatResponse renders an answer followed by its sources as
// "[n] <document>, page <p>".
func formatResponse(resp *domain.Response) string {
	var b strings.Builder
	b.WriteString(resp.Text)
	b.WriteString("\n")

	if len(resp.Citations) > 0 {
		b.WriteString("\nSources:\n")
		for _, c := range resp.Citations {
			view := usecase.RenderCitation(c)
			fmt.Fprintf(&b, "  [%d] %s, page %d\n", c.ID, view.Document, view.Page)
			if view.Snippet != "" {
				fmt.Fprintf(&b, "      %s\n", oneLine(view.Snippet))
			}
		}
	}
	if len(resp.Timeline) > 0 {
		b.WriteString("\nTimeline:\n")
		for _, event := range resp.Timeline {
			when := "undated"
			if event.Date != nil {
				when = event.Date.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "  %s  [%d] %s, page %d\n", when, event.CitationID, event.Document, event.Page)
		}
	}

	fmt.Fprintf(&b, "\n%s (intent %s", resp.Trace, resp.Intent)
	if resp.IntentFallback {
		b.WriteString(", fallback")
	}
	b.WriteString(")\n")
	return b.String()
}

func formatTurn(turn domain.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s  %s\n", turn.Index, turn.CreatedAt.Format("2006-01-02 15:04:05"), turn.Intent)
	fmt.Fprintf(&b, "  Q: %s\n", oneLine(turn.Query))
	if turn.Status == domain.TurnFailed {
		fmt.Fprintf(&b, "  failed during %s\n\n", turn.FailureStage)
		return b.String()
	}
	fmt.Fprintf(&b, "  A: %s\n", oneLine(turn.Response))
	for _, c := range turn.Citations {
		fmt.Fprintf(&b, "     [%d] %s, page %d\n", c.ID, c.DocumentTitle, c.PageNumber)
	}
	b.WriteString("\n")
	return b.String()
}

func writeStatsTable(w io.Writer, stats []domain.DocumentStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tTITLE\tPAGES\tCHUNKS\tCHARS")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.DocumentID, s.Title, s.PageCount, s.ChunkCount, s.TotalChars)
	}
	return tw.Flush()
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
