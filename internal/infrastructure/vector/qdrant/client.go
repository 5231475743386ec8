package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

const scrollPageSize = 256

// pointNamespace derives deterministic point ids from chunk ids, so upserting
// the same chunk twice overwrites one point.
var pointNamespace = uuid.MustParse("5b0d7c8e-3f7a-4f43-9a55-2c6f1f0e8a41")

var errCollectionMissing = errors.New("qdrant collection missing")

type Client struct {
	baseURL    string
	collection string
	embedder   string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int

	seq atomic.Int64
}

func New(baseURL, collection, embedderIdentity string) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedderIdentity,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	c.seq.Store(time.Now().UnixMicro())
	return c
}

func (c *Client) EmbedderIdentity() string {
	return c.embedder
}

func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (c *Client) Add(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	size := len(entries[0].Vector)
	for _, e := range entries {
		if len(e.Vector) != size || size == 0 {
			return domain.WrapError(
				domain.ErrDimensionMismatch,
				"qdrant add",
				fmt.Errorf("chunk %s has %d dimensions, batch has %d", e.Chunk.ID, len(e.Vector), size),
			)
		}
	}
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, PointID(e.Chunk.ID))
	}
	seqs, err := c.existingSeqs(ctx, ids)
	if err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(entries))
	for i, e := range entries {
		ch := e.Chunk
		seq, ok := seqs[ids[i]]
		if !ok {
			seq = c.seq.Add(1)
			seqs[ids[i]] = seq
		}
		points = append(points, point{
			ID:     ids[i],
			Vector: e.Vector,
			Payload: map[string]any{
				"chunk_id":       ch.ID,
				"doc_id":         ch.DocumentID,
				"document_title": ch.DocumentTitle,
				"page_number":    ch.PageNumber,
				"chunk_index":    ch.Index,
				"start_offset":   ch.StartOffset,
				"end_offset":     ch.EndOffset,
				"overlap":        ch.OverlapsPredecessor,
				"text":           ch.Text,
				"embedder":       c.embedder,
				"seq":            seq,
			},
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Search(ctx context.Context, queryVector []float32, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return []domain.SearchHit{}, nil
	}
	if size, ok := c.knownVectorSize(); ok && size != len(queryVector) {
		return nil, searchDimensionMismatch(len(queryVector), size)
	}

	points, err := c.search(ctx, queryVector, k, nil)
	if err != nil {
		return nil, err
	}
	// Qdrant cuts equal scores at the limit in point-id order. Widen the
	// window until every point tied with the k-th score is present, so the
	// seq tie-break decides which of them survive.
	if len(points) == k {
		boundary := points[k-1].Score
		for limit := 2 * k; ; limit *= 2 {
			wider, err := c.search(ctx, queryVector, limit, &boundary)
			if err != nil {
				return nil, err
			}
			points = wider
			if len(wider) < limit || wider[len(wider)-1].Score > boundary {
				break
			}
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return getIntPayload(a.Payload, "seq") < getIntPayload(b.Payload, "seq")
	})
	if len(points) > k {
		points = points[:k]
	}

	out := make([]domain.SearchHit, 0, len(points))
	for _, r := range points {
		out = append(out, domain.SearchHit{Chunk: chunkFromPayload(r.Payload), Score: r.Score})
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, queryVector []float32, limit int, scoreThreshold *float64) ([]scoredPoint, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       c.matchFilter("embedder", c.embedder),
	}
	if scoreThreshold != nil {
		reqBody["score_threshold"] = *scoreThreshold
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	err := c.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp)
	var statusErr *statusError
	switch {
	case errors.Is(err, errCollectionMissing):
		return []scoredPoint{}, nil
	case errors.As(err, &statusErr) && statusErr.code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(statusErr.msg), "dimension"):
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "qdrant search", statusErr)
	case err != nil:
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	return searchResp.Result, nil
}

// existingSeqs returns the insertion sequence of the points already stored
// under ids, so a re-added chunk keeps its tie-break position.
func (c *Client) existingSeqs(ctx context.Context, ids []string) (map[string]int64, error) {
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	reqBody := map[string]any{"ids": ids, "with_payload": []string{"seq"}, "with_vector": false}
	err := c.doJSON(ctx, http.MethodPost, url, reqBody, &resp)
	if errors.Is(err, errCollectionMissing) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qdrant retrieve points: %w", err)
	}

	seqs := make(map[string]int64, len(resp.Result))
	for _, p := range resp.Result {
		if _, ok := p.Payload["seq"]; ok {
			seqs[fmt.Sprintf("%v", p.ID)] = getIntPayload(p.Payload, "seq")
		}
	}
	return seqs, nil
}

// Chunks scrolls the whole collection and restores insertion order from the
// seq payload.
func (c *Client) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	type scrolled struct {
		chunk domain.Chunk
		seq   int64
	}
	var all []scrolled
	var offset any

	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
	for {
		reqBody := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
			"filter":       c.matchFilter("embedder", c.embedder),
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := c.doJSON(ctx, http.MethodPost, url, reqBody, &scrollResp)
		if errors.Is(err, errCollectionMissing) {
			return []domain.Chunk{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, p := range scrollResp.Result.Points {
			all = append(all, scrolled{chunk: chunkFromPayload(p.Payload), seq: getIntPayload(p.Payload, "seq")})
		}
		if scrollResp.Result.NextPageOffset == nil {
			break
		}
		offset = scrollResp.Result.NextPageOffset
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]domain.Chunk, 0, len(all))
	for _, s := range all {
		out = append(out, s.chunk)
	}
	return out, nil
}

func (c *Client) RemoveDocument(ctx context.Context, documentID string) error {
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.doJSON(ctx, http.MethodPost, url, map[string]any{"filter": c.matchFilter("doc_id", documentID)}, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("qdrant delete document points: %w", err)
	}
	return nil
}

// ReplaceDocument upserts the new entries before deleting the document's
// stale points, so a failed upsert keeps the previous chunks searchable.
// Chunks present in both sets keep their point and insertion sequence.
func (c *Client) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return c.RemoveDocument(ctx, documentID)
	}
	if err := c.Add(ctx, entries); err != nil {
		return err
	}

	keep := make([]string, 0, len(entries))
	for _, e := range entries {
		keep = append(keep, PointID(e.Chunk.ID))
	}
	filter := c.matchFilter("doc_id", documentID)
	filter["must_not"] = []map[string]any{{"has_id": keep}}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPost, url, map[string]any{"filter": filter}, nil); err != nil {
		return fmt.Errorf("qdrant delete stale document points: %w", err)
	}
	return nil
}

func (c *Client) matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": key,
				"match": map[string]any{
					"value": value,
				},
			},
		},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection {
		ensured := c.ensuredVectorSize
		c.ensureMu.Unlock()
		if ensured != vectorSize {
			return dimensionMismatch(vectorSize, ensured)
		}
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.doJSON(ctx, http.MethodPut, url, reqBody, nil)
	var statusErr *statusError
	switch {
	case err == nil:
		c.markCollectionEnsured(vectorSize)
		return nil
	case errors.As(err, &statusErr) && statusErr.code == http.StatusConflict:
		existing, err := c.collectionVectorSize(ctx)
		if err != nil {
			return err
		}
		c.markCollectionEnsured(existing)
		if existing != vectorSize {
			return dimensionMismatch(vectorSize, existing)
		}
		return nil
	default:
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
}

func (c *Client) collectionVectorSize(ctx context.Context) (int, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &info); err != nil {
		return 0, fmt.Errorf("qdrant collection info: %w", err)
	}
	return info.Result.Config.Params.Vectors.Size, nil
}

func (c *Client) knownVectorSize() (int, bool) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	return c.ensuredVectorSize, c.ensuredCollection
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.msg)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, msg: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func dimensionMismatch(got, want int) error {
	return domain.WrapError(
		domain.ErrDimensionMismatch,
		"qdrant add",
		fmt.Errorf("vectors have %d dimensions, collection has %d", got, want),
	)
}

func searchDimensionMismatch(got, want int) error {
	return domain.WrapError(
		domain.ErrDimensionMismatch,
		"qdrant search",
		fmt.Errorf("query has %d dimensions, collection has %d", got, want),
	)
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	overlap, _ := payload["overlap"].(bool)
	return domain.Chunk{
		ID:                  getStringPayload(payload, "chunk_id"),
		DocumentID:          getStringPayload(payload, "doc_id"),
		DocumentTitle:       getStringPayload(payload, "document_title"),
		PageNumber:          int(getIntPayload(payload, "page_number")),
		Index:               int(getIntPayload(payload, "chunk_index")),
		StartOffset:         int(getIntPayload(payload, "start_offset")),
		EndOffset:           int(getIntPayload(payload, "end_offset")),
		Text:                getStringPayload(payload, "text"),
		OverlapsPredecessor: overlap,
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}
