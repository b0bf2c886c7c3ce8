// Package mcpserver exposes call graph queries as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/reach/pkg/config"
)

// Server wraps the MCP server and registers all reach tools.
type Server struct {
	server *mcp.Server
	config *config.Config
	logger *slog.Logger
}

// NewServer creates a new MCP server with all reach tools registered. A nil
// cfg means each request loads the configuration of the tree it analyzes.
func NewServer(version string, cfg *config.Config, logger *slog.Logger) *Server {
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reach",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, config: cfg, logger: logger}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds the graph query tools to the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_graph",
		Description: describeAnalyzeGraph(),
	}, s.handleAnalyzeGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find_callers",
		Description: describeFindCallers(),
	}, s.handleFindCallers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find_callees",
		Description: describeFindCallees(),
	}, s.handleFindCallees)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "find_dead_code",
		Description: describeFindDeadCode(),
	}, s.handleFindDeadCode)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "validate_graph",
		Description: describeValidateGraph(),
	}, s.handleValidateGraph)
}
