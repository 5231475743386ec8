package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

type retrieverStub struct {
	out   domain.RetrieveDocumentsOutput
	err   error
	calls []domain.RetrieveDocumentsInput
}

func (r *retrieverStub) Retrieve(context.Context, string, int, float64) ([]domain.Evidence, error) {
	return nil, errors.New("not used")
}

func (r *retrieverStub) RetrieveDocuments(_ context.Context, in domain.RetrieveDocumentsInput) (domain.RetrieveDocumentsOutput, error) {
	if err := in.Validate(); err != nil {
		return domain.RetrieveDocumentsOutput{}, err
	}
	r.calls = append(r.calls, in)
	return r.out, r.err
}

type recorderStub struct {
	surface string
	results []int
}

func (r *recorderStub) RecordRetrieval(_, surface string, results int) {
	r.surface = surface
	r.results = append(r.results, results)
}

func callRetrieve(t *testing.T, srv *Server, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := srv.mcp.GetTool("retrieve_documents")
	require.NotNil(t, tool)

	req := mcp.CallToolRequest{}
	req.Params.Name = "retrieve_documents"
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestRetrieveDocumentsToolDefinition(t *testing.T) {
	srv := NewServer(&retrieverStub{}, nil, "test")

	tools := srv.mcp.ListTools()
	require.Contains(t, tools, "retrieve_documents")

	raw, err := json.Marshal(tools["retrieve_documents"].Tool)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"inputSchema"`)
	assert.Contains(t, string(raw), `"outputSchema"`)
	assert.Contains(t, string(raw), `"top_k"`)
	assert.Contains(t, string(raw), `"chunk_id"`)
}

func TestRetrieveDocumentsReturnsStructuredResults(t *testing.T) {
	retriever := &retrieverStub{out: domain.RetrieveDocumentsOutput{Results: []domain.RetrievedDocument{
		{ChunkID: "doc-a:p2:c0", Document: "Annual report", Page: 2, Score: 0.91, Snippet: "Revenue grew"},
		{ChunkID: "doc-b:p1:c3", Document: "Memo", Page: 1, Score: 0.42, Snippet: "Revenue fell"},
	}}}
	recorder := &recorderStub{}
	srv := NewServer(retriever, recorder, "test")

	result := callRetrieve(t, srv, map[string]any{"query": "revenue", "top_k": 2})

	require.False(t, result.IsError, "unexpected tool error: %v", result.Content)
	out, ok := result.StructuredContent.(domain.RetrieveDocumentsOutput)
	require.True(t, ok, "structured content has type %T", result.StructuredContent)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "doc-a:p2:c0", out.Results[0].ChunkID)
	assert.Equal(t, 2, out.Results[0].Page)

	require.Len(t, retriever.calls, 1)
	assert.Equal(t, 2, retriever.calls[0].TopK)
	assert.Equal(t, "mcp", recorder.surface)
	assert.Equal(t, []int{2}, recorder.results)
}

func TestRetrieveDocumentsDefaultsTopKAndReturnsEmptyList(t *testing.T) {
	retriever := &retrieverStub{}
	srv := NewServer(retriever, nil, "test")

	result := callRetrieve(t, srv, map[string]any{"query": "nothing indexed"})

	require.False(t, result.IsError)
	out, ok := result.StructuredContent.(domain.RetrieveDocumentsOutput)
	require.True(t, ok)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	require.Len(t, retriever.calls, 1)
	assert.Equal(t, domain.DefaultTopK, retriever.calls[0].TopK)
}

func TestRetrieveDocumentsRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"blank query", map[string]any{"query": "   "}},
		{"top_k above maximum", map[string]any{"query": "q", "top_k": 51}},
		{"negative top_k", map[string]any{"query": "q", "top_k": -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retriever := &retrieverStub{}
			srv := NewServer(retriever, nil, "test")

			result := callRetrieve(t, srv, tc.args)

			assert.True(t, result.IsError)
			assert.Empty(t, retriever.calls)
		})
	}
}

func TestRetrieveDocumentsSurfacesRetrievalFailure(t *testing.T) {
	retriever := &retrieverStub{err: domain.WithStage(domain.StageRetrieval, errors.New("index unavailable"))}
	srv := NewServer(retriever, nil, "test")

	result := callRetrieve(t, srv, map[string]any{"query": "q"})

	require.True(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "retrieval failed: index unavailable")
}
