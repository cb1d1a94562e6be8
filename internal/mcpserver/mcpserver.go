// Package mcpserver exposes the tool registry over the Model Context
// Protocol. Every registered tool becomes an MCP tool with its JSON Schema
// passed through verbatim, so MCP clients see exactly what the HTTP API
// dispatches. Supports stdio, SSE, and streamable HTTP transports.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/kazi/internal/tools"
)

// Server bridges a tools.Registry to MCP clients.
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	logger   *slog.Logger
}

// New creates an MCP server exposing every tool in the registry.
func New(name, version string, registry *tools.Registry, logger *slog.Logger) (*Server, error) {
	s := &Server{
		mcp: server.NewMCPServer(name, version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		registry: registry,
		logger:   logger,
	}

	for _, t := range registry.All() {
		schema, err := json.Marshal(t.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for tool %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(t.Name(), t.Description(), json.RawMessage(schema)),
			s.handlerFor(t),
		)
	}

	logger.Info("mcp server initialized", slog.Int("tools", len(registry.All())))
	return s, nil
}

func (s *Server) handlerFor(t tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		correlationID := uuid.NewString()
		ctx = tools.ContextWithCorrelationID(ctx, correlationID)

		params := req.GetArguments()
		if params == nil {
			params = map[string]any{}
		}

		if err := t.Validate(params); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := t.Execute(ctx, params)
		if err != nil {
			s.logger.WarnContext(ctx, "mcp tool call failed",
				slog.String("tool", t.Name()),
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			return mcp.NewToolResultError(err.Error()), nil
		}

		var res *mcp.CallToolResult
		if result.Success {
			res = mcp.NewToolResultText(result.Output)
		} else {
			res = mcp.NewToolResultError(result.Output)
		}
		// Execution details (exit_code, timed_out, duration_ms) ride along
		// as structured content so clients need not parse the text.
		if len(result.Metadata) > 0 {
			res.StructuredContent = result.Metadata
		}
		return res, nil
	}
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// SSEHandler returns an http.Handler serving the MCP SSE transport
// rooted at basePath.
func (s *Server) SSEHandler(basePath string) http.Handler {
	return server.NewSSEServer(s.mcp, server.WithStaticBasePath(basePath))
}

// StreamableHandler returns an http.Handler serving the MCP streamable
// HTTP transport rooted at basePath.
func (s *Server) StreamableHandler(basePath string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(basePath))
}
