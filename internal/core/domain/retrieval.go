package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTopK     = 5
	MaxToolTopK     = 50
	SnippetMaxRunes = 200
)

// Evidence is a chunk surfaced for one query. Rank is 1-based.
type Evidence struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type Citation struct {
	ID            int    `json:"citation_id"`
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	DocumentTitle string `json:"document"`
	PageNumber    int    `json:"page"`
	Snippet       string `json:"snippet"`
}

// CitationView is what the viewer needs to navigate to a citation.
type CitationView struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	Snippet  string `json:"snippet"`
}

func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= SnippetMaxRunes {
		return text
	}
	return string(runes[:SnippetMaxRunes]) + "..."
}

type RetrieveDocumentsInput struct {
	Query string `json:"query" jsonschema:"description=Natural language query to search the indexed documents for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Maximum number of chunks to return,default=5,minimum=1,maximum=50"`
}

func (in *RetrieveDocumentsInput) Validate() error {
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return WrapError(ErrInvalidInput, "retrieve_documents", errors.New("query is required"))
	}
	if in.TopK == 0 {
		in.TopK = DefaultTopK
	}
	if in.TopK < 1 || in.TopK > MaxToolTopK {
		return WrapError(ErrInvalidInput, "retrieve_documents", fmt.Errorf("top_k must be between 1 and %d", MaxToolTopK))
	}
	return nil
}

type RetrievedDocument struct {
	ChunkID  string  `json:"chunk_id"`
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
}

type RetrieveDocumentsOutput struct {
	Results []RetrievedDocument `json:"results"`
}

// Validate checks the output half of the tool contract against the request.
func (out RetrieveDocumentsOutput) Validate(in RetrieveDocumentsInput) error {
	if len(out.Results) > in.TopK {
		return fmt.Errorf("retrieve_documents returned %d results for top_k=%d", len(out.Results), in.TopK)
	}
	for i, r := range out.Results {
		if r.ChunkID == "" {
			return fmt.Errorf("retrieve_documents result %d has no chunk_id", i)
		}
		if r.Page < 1 {
			return fmt.Errorf("retrieve_documents result %d has page %d", i, r.Page)
		}
		if i > 0 && r.Score > out.Results[i-1].Score {
			return fmt.Errorf("retrieve_documents results are not ordered by score at %d", i)
		}
	}
	return nil
}
