package mcpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/legal-case-rag/internal/core/domain"
	"github.com/kirillkom/legal-case-rag/internal/core/ports"
)

const (
	serverName    = "legal-case-rag"
	serverVersion = "0.1.0"
)

// Server exposes the retrieval tools over the Model Context Protocol.
type Server struct {
	retrieval   ports.RetrievalService
	defaultTopN int
	mcp         *server.MCPServer
}

func NewServer(retrieval ports.RetrievalService, defaultTopN int) *Server {
	if defaultTopN <= 0 {
		defaultTopN = 3
	}
	s := &Server{
		retrieval:   retrieval,
		defaultTopN: defaultTopN,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.mcp.AddTool(mcp.NewTool(domain.ToolKeywordSearch,
		mcp.WithDescription("BM25 keyword search over the legal case corpus. Returns <results> XML with ids, scores and snippets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithNumber("n", mcp.Description("Number of results"), mcp.Min(1)),
	), s.keywordSearch)
	s.mcp.AddTool(mcp.NewTool(domain.ToolSemanticSearch,
		mcp.WithDescription("Dense vector search over embedded case parts. Returns <results> XML with ids, scores and fragments."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("n", mcp.Description("Number of results"), mcp.Min(1)),
	), s.semanticSearch)
	s.mcp.AddTool(mcp.NewTool(domain.ToolReadDocumentPart,
		mcp.WithDescription("Return the XML of the element whose id attribute equals part_id."),
		mcp.WithString("part_id", mcp.Required(), mcp.Description("Value of the element id attribute")),
		mcp.WithBoolean("wrap", mcp.Description("Wrap the element in a legalDocument envelope (default true)")),
		mcp.WithBoolean("stream", mcp.Description("Use the streaming resolver (default false)")),
	), s.readDocumentPart)
	return s
}

// MCPServer returns the underlying server for transports.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving JSON-RPC over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) keywordSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	n := req.GetInt("n", s.defaultTopN)
	return s.textResult(domain.ToolKeywordSearch, func() (string, error) {
		return s.retrieval.KeywordSearch(ctx, query, n)
	})
}

func (s *Server) semanticSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	n := req.GetInt("n", s.defaultTopN)
	return s.textResult(domain.ToolSemanticSearch, func() (string, error) {
		return s.retrieval.SemanticSearch(ctx, query, n)
	})
}

func (s *Server) readDocumentPart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	partID, err := req.RequireString("part_id")
	if err != nil || strings.TrimSpace(partID) == "" {
		return mcp.NewToolResultError("part_id is required"), nil
	}
	opts := domain.ResolveOptions{
		Wrap:   req.GetBool("wrap", true),
		Stream: req.GetBool("stream", false),
	}
	return s.textResult(domain.ToolReadDocumentPart, func() (string, error) {
		return s.retrieval.ReadDocumentPart(ctx, partID, opts)
	})
}

// textResult turns domain failures into tool error results so the client
// sees the message instead of a protocol error.
func (s *Server) textResult(tool string, call func() (string, error)) (*mcp.CallToolResult, error) {
	started := time.Now()
	out, err := call()
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", tool, "duration_ms", time.Since(started).Milliseconds(), "error", err)
		if domain.IsKind(err, domain.ErrRetrieverUnavailable) {
			return mcp.NewToolResultError("Semantic search not initialized"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	slog.Debug("mcp_tool_completed", "tool", tool, "duration_ms", time.Since(started).Milliseconds(), "bytes", len(out))
	return mcp.NewToolResultText(out), nil
}
