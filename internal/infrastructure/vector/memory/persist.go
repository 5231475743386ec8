package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

const fileVersion = 1

type fileLayout struct {
	Version   int         `json:"version"`
	Dimension int         `json:"dimension"`
	Embedder  string      `json:"embedder"`
	Entries   []fileEntry `json:"entries"`
}

type fileEntry struct {
	ChunkID       string    `json:"chunk_id"`
	Vector        []float32 `json:"vector"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	PageNumber    int       `json:"page_number"`
	StartOffset   int       `json:"start_offset"`
	EndOffset     int       `json:"end_offset"`
	ChunkIndex    int       `json:"chunk_index"`
	Overlap       bool      `json:"overlap"`
	Text          string    `json:"text"`
}

// Open loads the index stored at path, or returns an empty index bound to
// path when the file does not exist yet.
func Open(path, embedderIdentity string) (*Index, error) {
	idx := New(embedderIdentity)
	idx.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("decode index file: %w", err)
	}
	if layout.Version != fileVersion {
		return nil, fmt.Errorf("index file version %d is not supported", layout.Version)
	}
	if layout.Embedder != embedderIdentity {
		return nil, domain.WrapError(
			domain.ErrEmbedderMismatch,
			"open index",
			fmt.Errorf("index was built by %q, configured embedder is %q", layout.Embedder, embedderIdentity),
		)
	}

	entries := make([]domain.IndexEntry, 0, len(layout.Entries))
	for _, e := range layout.Entries {
		entries = append(entries, domain.IndexEntry{
			Chunk: domain.Chunk{
				ID:                  e.ChunkID,
				DocumentID:          e.DocumentID,
				DocumentTitle:       e.DocumentTitle,
				PageNumber:          e.PageNumber,
				Index:               e.ChunkIndex,
				StartOffset:         e.StartOffset,
				EndOffset:           e.EndOffset,
				Text:                e.Text,
				OverlapsPredecessor: e.Overlap,
			},
			Vector: e.Vector,
		})
	}
	idx.dimension = layout.Dimension
	if err := idx.Add(context.Background(), entries); err != nil {
		return nil, fmt.Errorf("load index entries: %w", err)
	}
	return idx, nil
}

// Persist writes the index to its file through a temp file and rename.
func (i *Index) Persist(ctx context.Context) error {
	if i.path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.RLock()
	layout := fileLayout{
		Version:   fileVersion,
		Dimension: i.dimension,
		Embedder:  i.embedder,
		Entries:   make([]fileEntry, 0, len(i.entries)),
	}
	for _, entry := range i.entries {
		c := entry.Chunk
		layout.Entries = append(layout.Entries, fileEntry{
			ChunkID:       c.ID,
			Vector:        entry.Vector,
			DocumentID:    c.DocumentID,
			DocumentTitle: c.DocumentTitle,
			PageNumber:    c.PageNumber,
			StartOffset:   c.StartOffset,
			EndOffset:     c.EndOffset,
			ChunkIndex:    c.Index,
			Overlap:       c.OverlapsPredecessor,
			Text:          c.Text,
		})
	}
	i.mu.RUnlock()

	raw, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encode index file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(i.path), ".index-*.json")
	if err != nil {
		return fmt.Errorf("create index temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write index temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), i.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}
