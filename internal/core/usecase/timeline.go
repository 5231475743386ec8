package usecase

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const monthPattern = `(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?`

var (
	isoDatePattern      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayYearPattern = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2}),?\s+(\d{4})\b`)
	dayMonthYearPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s+` + monthPattern + `,?\s+(\d{4})\b`)
	monthYearPattern    = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{4})\b`)
	yearPattern         = regexp.MustCompile(`\b(1[89]\d{2}|2[01]\d{2})\b`)
)

// TemporalMention is a date found in free text.
type TemporalMention struct {
	Text   string
	Date   time.Time
	Offset int
}

// ExtractTemporalMentions returns the dates in text, most specific patterns
// first, without reporting the same span twice.
func ExtractTemporalMentions(text string) []TemporalMention {
	mentions := make([]TemporalMention, 0)
	taken := make([][2]int, 0)

	overlaps := func(start, end int) bool {
		for _, span := range taken {
			if start < span[1] && end > span[0] {
				return true
			}
		}
		return false
	}

	collect := func(pattern *regexp.Regexp, parse func(groups []string) (time.Time, bool)) {
		for _, idx := range pattern.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(idx[0], idx[1]) {
				continue
			}
			groups := make([]string, 0, len(idx)/2)
			for g := 0; g < len(idx); g += 2 {
				if idx[g] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[idx[g]:idx[g+1]])
			}
			date, ok := parse(groups)
			if !ok {
				continue
			}
			taken = append(taken, [2]int{idx[0], idx[1]})
			mentions = append(mentions, TemporalMention{Text: groups[0], Date: date, Offset: idx[0]})
		}
	}

	collect(isoDatePattern, func(g []string) (time.Time, bool) {
		return makeDate(g[1], monthNumber(g[2]), g[3])
	})
	collect(monthDayYearPattern, func(g []string) (time.Time, bool) {
		return makeDate(g[3], monthByName(g[1]), g[2])
	})
	collect(dayMonthYearPattern, func(g []string) (time.Time, bool) {
		return makeDate(g[3], monthByName(g[2]), g[1])
	})
	collect(monthYearPattern, func(g []string) (time.Time, bool) {
		return makeDate(g[2], monthByName(g[1]), "1")
	})
	collect(yearPattern, func(g []string) (time.Time, bool) {
		return makeDate(g[1], time.January, "1")
	})

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Offset < mentions[j].Offset
	})
	return mentions
}

func makeDate(yearRaw string, month time.Month, dayRaw string) (time.Time, bool) {
	year, err := strconv.Atoi(yearRaw)
	if err != nil || month == 0 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayRaw)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

func monthNumber(raw string) time.Month {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func monthByName(raw string) time.Month {
	name := strings.ToLower(strings.TrimSuffix(raw, "."))
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return m
		}
	}
	return 0
}

// OrderTimeline puts dated evidence first in chronological order, then the
// undated rest. Ties and undated evidence keep document order: first
// appearance of the document, then page, then offset.
func OrderTimeline(evidence []domain.Evidence) ([]domain.Evidence, []domain.TimelineEvent) {
	type entry struct {
		ev       domain.Evidence
		mention  *TemporalMention
		docOrder int
	}

	docOrder := make(map[string]int)
	entries := make([]entry, 0, len(evidence))
	for _, ev := range evidence {
		if _, ok := docOrder[ev.Chunk.DocumentID]; !ok {
			docOrder[ev.Chunk.DocumentID] = len(docOrder)
		}
		e := entry{ev: ev, docOrder: docOrder[ev.Chunk.DocumentID]}
		mentions := ExtractTemporalMentions(ev.Chunk.Text)
		for i := range mentions {
			if e.mention == nil || mentions[i].Date.Before(e.mention.Date) {
				e.mention = &mentions[i]
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.mention != nil) != (b.mention != nil) {
			return a.mention != nil
		}
		if a.mention != nil && !a.mention.Date.Equal(b.mention.Date) {
			return a.mention.Date.Before(b.mention.Date)
		}
		if a.docOrder != b.docOrder {
			return a.docOrder < b.docOrder
		}
		if a.ev.Chunk.PageNumber != b.ev.Chunk.PageNumber {
			return a.ev.Chunk.PageNumber < b.ev.Chunk.PageNumber
		}
		return a.ev.Chunk.StartOffset < b.ev.Chunk.StartOffset
	})

	ordered := make([]domain.Evidence, 0, len(entries))
	events := make([]domain.TimelineEvent, 0, len(entries))
	for i, e := range entries {
		e.ev.Rank = i + 1
		ordered = append(ordered, e.ev)

		event := domain.TimelineEvent{
			CitationID: i + 1,
			Document:   e.ev.Chunk.DocumentTitle,
			Page:       e.ev.Chunk.PageNumber,
		}
		if e.mention != nil {
			date := e.mention.Date
			event.Mention = e.mention.Text
			event.Date = &date
		}
		events = append(events, event)
	}
	return ordered, events
}

type TimelineSpecialist struct {
	citations *CitationTracker
}

func NewTimelineSpecialist(citations *CitationTracker) *TimelineSpecialist {
	return &TimelineSpecialist{citations: citations}
}

func (s *TimelineSpecialist) ID() domain.SpecialistID {
	return domain.SpecialistTimeline
}

func (s *TimelineSpecialist) Run(ctx context.Context, in domain.SpecialistInput) (domain.SpecialistOutput, error) {
	evidence := upstreamEvidence(in)
	if len(evidence) == 0 {
		return noGroundedOutput(s.ID()), nil
	}

	ordered, events := OrderTimeline(evidence)
	text, stripped, err := s.citations.Generate(ctx, buildTimelinePrompt(in.Query, ordered, events), len(ordered))
	if err != nil {
		return domain.SpecialistOutput{}, err
	}
	return domain.SpecialistOutput{
		Specialist:        s.ID(),
		Text:              text,
		Evidence:          ordered,
		Grounded:          true,
		Timeline:          events,
		StrippedCitations: stripped,
	}, nil
}

var _ ports.Specialist = (*TimelineSpecialist)(nil)
