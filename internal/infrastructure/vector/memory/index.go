package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

// Index is a process-local brute-force cosine index. Vectors are stored
// L2-normalized so the inner product is the cosine similarity.
type Index struct {
	mu        sync.RWMutex
	path      string
	embedder  string
	dimension int
	entries   []domain.IndexEntry
	positions map[string]int
}

func New(embedderIdentity string) *Index {
	return &Index{
		embedder:  embedderIdentity,
		positions: make(map[string]int),
	}
}

func (i *Index) EmbedderIdentity() string {
	return i.embedder
}

func (i *Index) Dimension() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.dimension
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Add validates the whole batch before writing, so a mismatched vector leaves
// the index untouched. Re-adding a chunk id replaces it in place.
func (i *Index) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dimension, err := i.validate("index add", entries)
	if err != nil {
		return err
	}
	i.dimension = dimension
	i.insert(entries)
	return nil
}

// ReplaceDocument drops the document's entries and adds entries under one
// write lock. A rejected batch leaves the previous entries in place.
func (i *Index) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	dimension := i.dimension
	if len(entries) > 0 {
		var err error
		if dimension, err = i.validate("index replace document", entries); err != nil {
			return err
		}
	}
	i.removeDocument(documentID)
	i.dimension = dimension
	i.insert(entries)
	return nil
}

// validate checks entries against the index dimension, or against the first
// entry when the index is still empty. Callers hold the write lock.
func (i *Index) validate(op string, entries []domain.IndexEntry) (int, error) {
	dimension := i.dimension
	if dimension == 0 {
		dimension = len(entries[0].Vector)
	}
	if dimension == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("chunk %s has an empty vector", entries[0].Chunk.ID))
	}
	for _, entry := range entries {
		if entry.Chunk.ID == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("entry without chunk id"))
		}
		if len(entry.Vector) != dimension {
			return 0, domain.WrapError(
				domain.ErrDimensionMismatch,
				op,
				fmt.Errorf("chunk %s has %d dimensions, index has %d", entry.Chunk.ID, len(entry.Vector), dimension),
			)
		}
	}
	return dimension, nil
}

func (i *Index) insert(entries []domain.IndexEntry) {
	for _, entry := range entries {
		stored := domain.IndexEntry{Chunk: entry.Chunk, Vector: normalize(entry.Vector)}
		if pos, ok := i.positions[entry.Chunk.ID]; ok {
			i.entries[pos] = stored
			continue
		}
		i.positions[entry.Chunk.ID] = len(i.entries)
		i.entries = append(i.entries, stored)
	}
}

func (i *Index) Search(ctx context.Context, query []float32, k int) ([]domain.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.entries) == 0 || k <= 0 {
		return []domain.SearchHit{}, nil
	}
	if len(query) != i.dimension {
		return nil, domain.WrapError(
			domain.ErrDimensionMismatch,
			"index search",
			fmt.Errorf("query has %d dimensions, index has %d", len(query), i.dimension),
		)
	}

	q := normalize(query)
	hits := make([]domain.SearchHit, len(i.entries))
	for pos, entry := range i.entries {
		hits[pos] = domain.SearchHit{Chunk: entry.Chunk, Score: dot(q, entry.Vector)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Chunks lists the indexed chunks in insertion order.
func (i *Index) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(i.entries))
	for _, entry := range i.entries {
		out = append(out, entry.Chunk)
	}
	return out, nil
}

func (i *Index) RemoveDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removeDocument(documentID)
	return nil
}

func (i *Index) removeDocument(documentID string) {
	kept := i.entries[:0]
	for _, entry := range i.entries {
		if entry.Chunk.DocumentID != documentID {
			kept = append(kept, entry)
		}
	}
	for pos := len(kept); pos < len(i.entries); pos++ {
		i.entries[pos] = domain.IndexEntry{}
	}
	i.entries = kept
	i.positions = make(map[string]int, len(kept))
	for pos, entry := range kept {
		i.positions[entry.Chunk.ID] = pos
	}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for idx, x := range v {
		out[idx] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for idx := range a {
		sum += float64(a[idx]) * float64(b[idx])
	}
	return sum
}
