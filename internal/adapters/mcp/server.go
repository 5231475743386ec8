package mcpadapter

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const (
	serverName       = "docs-analyst"
	retrievalSurface = "mcp"
)

// Version is set via ldflags at build time.
var Version = "dev"

// RetrievalRecorder receives one observation per tool call.
type RetrievalRecorder interface {
	RecordRetrieval(service, surface string, results int)
}

// Server exposes retrieval over the Model Context Protocol.
type Server struct {
	retriever ports.Retriever
	recorder  RetrievalRecorder
	service   string
	mcp       *server.MCPServer
}

func NewServer(retriever ports.Retriever, recorder RetrievalRecorder, service string) *Server {
	s := &Server{
		retriever: retriever,
		recorder:  recorder,
		service:   service,
	}

	s.mcp = server.NewMCPServer(
		serverName,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(retrieveDocumentsTool, mcp.NewStructuredToolHandler(s.handleRetrieveDocuments))

	return s
}

// ServeStdio blocks serving MCP on stdin/stdout. Logs must go to stderr.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

var retrieveDocumentsTool = mcp.NewTool("retrieve_documents",
	mcp.WithDescription("Search the indexed documents and return the most relevant chunks with document, page and score. Results are ordered by descending similarity and filtered by the configured threshold."),
	mcp.WithInputSchema[domain.RetrieveDocumentsInput](),
	mcp.WithOutputSchema[domain.RetrieveDocumentsOutput](),
)

func (s *Server) handleRetrieveDocuments(ctx context.Context, _ mcp.CallToolRequest, in domain.RetrieveDocumentsInput) (domain.RetrieveDocumentsOutput, error) {
	out, err := s.retriever.RetrieveDocuments(ctx, in)
	if err != nil {
		slog.WarnContext(ctx, "mcp_tool_failed",
			"tool", retrieveDocumentsTool.Name,
			"error", err,
		)
		return domain.RetrieveDocumentsOutput{}, err
	}
	if out.Results == nil {
		out.Results = []domain.RetrievedDocument{}
	}
	if s.recorder != nil {
		s.recorder.RecordRetrieval(s.service, retrievalSurface, len(out.Results))
	}
	return out, nil
}
