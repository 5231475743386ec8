package domain

import "time"

type SpecialistInput struct {
	Query    string
	Upstream *SpecialistOutput
	// DocumentIDs narrows corpus-wide specialists; empty means all documents.
	DocumentIDs []string
}

// SpecialistOutput carries the evidence exactly as it was numbered for the
// generator, so citation ids in Text index into Evidence.
type SpecialistOutput struct {
	Specialist SpecialistID
	Text       string
	Evidence   []Evidence
	Grounded   bool

	Comparison []DocumentGroup
	Timeline   []TimelineEvent

	StrippedCitations int
}

type DocumentGroup struct {
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document"`
	CitationIDs   []int  `json:"citation_ids"`
}

type TimelineEvent struct {
	CitationID int        `json:"citation_id"`
	Mention    string     `json:"mention,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Document   string     `json:"document"`
	Page       int        `json:"page"`
}

type Response struct {
	SessionID      string          `json:"session_id"`
	TurnIndex      int             `json:"turn_index"`
	Intent         Intent          `json:"intent"`
	IntentFallback bool            `json:"intent_fallback"`
	Chain          []SpecialistID  `json:"chain"`
	Trace          string          `json:"execution_trace"`
	Text           string          `json:"text"`
	Grounded       bool            `json:"grounded"`
	Citations      []Citation      `json:"citations"`
	Comparison     []DocumentGroup `json:"comparison,omitempty"`
	Timeline       []TimelineEvent `json:"timeline,omitempty"`

	StrippedCitations int `json:"stripped_citations"`
}

type Summary struct {
	Text            string   `json:"summary"`
	ChunksProcessed int      `json:"chunks_processed"`
	Rounds          int      `json:"rounds"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
}
