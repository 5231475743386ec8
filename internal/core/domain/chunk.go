package domain

import "fmt"

// Chunk is a contiguous slice of one page. Offsets are rune offsets into the
// normalized page text, end exclusive.
type Chunk struct {
	ID                  string `json:"chunk_id"`
	DocumentID          string `json:"document_id"`
	DocumentTitle       string `json:"document_title"`
	PageNumber          int    `json:"page_number"`
	Index               int    `json:"chunk_index"`
	StartOffset         int    `json:"start_offset"`
	EndOffset           int    `json:"end_offset"`
	Text                string `json:"text"`
	OverlapsPredecessor bool   `json:"overlap_with_predecessor"`
}

func ChunkID(documentID string, page, index int) string {
	return fmt.Sprintf("%s:p%d:c%d", documentID, page, index)
}

type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}

type SearchHit struct {
	Chunk Chunk
	Score float64
}
