package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type docRepoFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	createErr   error
	statusCalls []statusCall
	pages       int
	chunks      int
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{docs: make(map[string]*domain.Document)}
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) List(context.Context) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}

func (f *docRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id %s", id))
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *docRepoFake) SaveIngestResult(_ context.Context, id string, pageCount, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save ingest result", fmt.Errorf("id %s", id))
	}
	doc.PageCount = pageCount
	doc.ChunkCount = chunkCount
	return nil
}

func (f *docRepoFake) lastStatus() domain.DocumentStatus {
	if len(f.statusCalls) == 0 {
		return ""
	}
	return f.statusCalls[len(f.statusCalls)-1].status
}

type storageFake struct {
	objects map[string]string
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string]string)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = string(raw)
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type dispatcherFake struct {
	ids []string
	err error
}

func (f *dispatcherFake) Dispatch(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, documentID)
	return nil
}

// pageExtractorFake reads the stored body and splits pages on form feed.
type pageExtractorFake struct {
	storage *storageFake
	err     error
}

func (f *pageExtractorFake) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	rc, err := f.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	pages := make([]domain.Page, 0)
	for i, text := range strings.Split(string(raw), "\f") {
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

// lineChunker makes one chunk per non-empty line of each page.
type lineChunker struct{}

func (lineChunker) Split(doc domain.Document, pages []domain.Page) []domain.Chunk {
	chunks := make([]domain.Chunk, 0)
	for _, page := range pages {
		offset := 0
		index := 0
		for _, line := range strings.Split(page.Text, "\n") {
			start := offset
			offset += len([]rune(line)) + 1
			if strings.TrimSpace(line) == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				ID:            domain.ChunkID(doc.ID, page.Number, index),
				DocumentID:    doc.ID,
				DocumentTitle: doc.Title,
				PageNumber:    page.Number,
				Index:         index,
				StartOffset:   start,
				EndOffset:     start + len([]rune(line)),
				Text:          line,
			})
			index++
		}
	}
	return chunks
}

// keywordEmbedder counts vocabulary words; the trailing component keeps
// vectors non-zero.
type keywordEmbedder struct {
	vocab    []string
	identity string
	calls    [][]string
	err      error
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab, identity: "fake:keywords"}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(e.vocab)+1)
	for i, word := range e.vocab {
		vec[i] = float32(strings.Count(lower, word))
	}
	vec[len(e.vocab)] = 0.01
	return vec
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, texts)
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, e.vector(text))
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) Identity() string {
	return e.identity
}

// scriptedIndex returns fixed hits regardless of the query vector.
type scriptedIndex struct {
	hits      []domain.SearchHit
	chunks    []domain.Chunk
	added     []domain.IndexEntry
	removed   []string
	persisted int
	identity  string
	err       error
}

func (f *scriptedIndex) Add(_ context.Context, entries []domain.IndexEntry) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, entries...)
	for _, entry := range entries {
		f.chunks = append(f.chunks, entry.Chunk)
	}
	return nil
}

func (f *scriptedIndex) Search(_ context.Context, _ []float32, k int) ([]domain.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.hits) {
		k = len(f.hits)
	}
	return append([]domain.SearchHit(nil), f.hits[:k]...), nil
}

func (f *scriptedIndex) Chunks(context.Context) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Chunk(nil), f.chunks...), nil
}

func (f *scriptedIndex) RemoveDocument(_ context.Context, documentID string) error {
	f.removed = append(f.removed, documentID)
	kept := f.chunks[:0]
	for _, chunk := range f.chunks {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	f.chunks = kept
	return nil
}

func (f *scriptedIndex) EmbedderIdentity() string {
	return f.identity
}

func (f *scriptedIndex) Persist(context.Context) error {
	f.persisted++
	return nil
}

// generatorFake answers by prompt prefix; unmatched prompts get fallback.
type generatorFake struct {
	mu       sync.Mutex
	prompts  []string
	replies  map[string][]string
	fallback string
	err      error
	hook     func(prompt string)
}

func newGeneratorFake(fallback string) *generatorFake {
	return &generatorFake{replies: make(map[string][]string), fallback: fallback}
}

// on queues replies for prompts starting with prefix, consumed in order; the
// last reply repeats.
func (f *generatorFake) on(prefix string, replies ...string) *generatorFake {
	f.replies[prefix] = replies
	return f
}

func (f *generatorFake) Generate(ctx context.Context, prompt string) (string, error) {
	if f.hook != nil {
		f.hook(prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for prefix, replies := range f.replies {
		if !strings.HasPrefix(prompt, prefix) || len(replies) == 0 {
			continue
		}
		reply := replies[0]
		if len(replies) > 1 {
			f.replies[prefix] = replies[1:]
		}
		return reply, nil
	}
	return f.fallback, nil
}

func (f *generatorFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *generatorFake) promptsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for _, p := range f.prompts {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

type sessionStoreFake struct {
	sessions  map[string]domain.Session
	turns     map[string][]domain.Turn
	appendErr error
}

func newSessionStoreFake(ids ...string) *sessionStoreFake {
	f := &sessionStoreFake{
		sessions: make(map[string]domain.Session),
		turns:    make(map[string][]domain.Turn),
	}
	for _, id := range ids {
		f.sessions[id] = domain.Session{ID: id, UserID: "tester"}
	}
	return f
}

func (f *sessionStoreFake) CreateSession(_ context.Context, session domain.Session) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *sessionStoreFake) GetSession(_ context.Context, id string) (*domain.Session, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id %s", id))
	}
	return &session, nil
}

func (f *sessionStoreFake) AppendTurn(_ context.Context, turn domain.Turn) (domain.Turn, error) {
	if f.appendErr != nil {
		return domain.Turn{}, f.appendErr
	}
	if _, ok := f.sessions[turn.SessionID]; !ok {
		return domain.Turn{}, domain.WrapError(domain.ErrSessionNotFound, "append turn", fmt.Errorf("id %s", turn.SessionID))
	}
	turn.Index = len(f.turns[turn.SessionID]) + 1
	f.turns[turn.SessionID] = append(f.turns[turn.SessionID], turn)
	return turn, nil
}

func (f *sessionStoreFake) ListTurns(_ context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	turns := f.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.Turn(nil), turns...), nil
}

func chunkFor(docID, title string, page, index int, text string) domain.Chunk {
	return domain.Chunk{
		ID:            domain.ChunkID(docID, page, index),
		DocumentID:    docID,
		DocumentTitle: title,
		PageNumber:    page,
		Index:         index,
		StartOffset:   index * 100,
		EndOffset:     index*100 + len([]rune(text)),
		Text:          text,
	}
}

func evidenceOf(chunks ...domain.Chunk) []domain.Evidence {
	out := make([]domain.Evidence, 0, len(chunks))
	for i, chunk := range chunks {
		out = append(out, domain.Evidence{Chunk: chunk, Score: 0.9 - float64(i)*0.1, Rank: i + 1})
	}
	return out
}
