package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusSkipped    DocumentStatus = "skipped"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	PageCount   int            `json:"page_count"`
	ChunkCount  int            `json:"chunk_count"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Page is one unit of extracted text. Numbers are 1-based.
type Page struct {
	Number int           `json:"page_number"`
	Text   string        `json:"text"`
	Boxes  []BoundingBox `json:"boxes,omitempty"`
}

type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

type DocumentStats struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count"`
	TotalChars int    `json:"total_chars"`
}

// IngestReport summarizes a multi-document ingestion run.
type IngestReport struct {
	Ingested []Document      `json:"ingested"`
	Skipped  []Document      `json:"skipped"`
	Failed   []IngestFailure `json:"failed"`
}

type IngestFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}
