// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sustainable-computing-io/powerstats/config"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"github.com/sustainable-computing-io/powerstats/internal/service"
	"github.com/sustainable-computing-io/powerstats/internal/version"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	APIRegistry = interface {
		Register(endpoint, summary, description string, handler http.Handler) error
	}
)

// Dumper writes the diagnostic report
type Dumper interface {
	Dump(w io.Writer, args []string) powerstats.Status
}

// Server exposes power stats as Model Context Protocol tools
type Server struct {
	logger      *slog.Logger
	stats       powerstats.Querier
	reporter    Dumper
	server      *mcp.Server
	apiRegistry APIRegistry

	useHTTP   bool
	httpPath  string
	transport string
}

var (
	_ Initializer = (*Server)(nil)
	_ Runner      = (*Server)(nil)
)

// Option defines functional options for MCP server configuration
type Option func(*Server)

// WithStreamableHTTP enables streamable HTTP transport
func WithStreamableHTTP(apiRegistry APIRegistry, path string) Option {
	return func(s *Server) {
		s.useHTTP = true
		s.apiRegistry = apiRegistry
		s.httpPath = path
		s.transport = config.MCPTransportStreamable
	}
}

// WithSSETransport enables Server-Sent Events transport
func WithSSETransport(apiRegistry APIRegistry, path string) Option {
	return func(s *Server) {
		s.useHTTP = true
		s.apiRegistry = apiRegistry
		s.httpPath = path
		s.transport = config.MCPTransportSSE
	}
}

// NewServer creates a new MCP server instance, serving stdio unless an HTTP
// transport option is given
func NewServer(stats powerstats.Querier, reporter Dumper, logger *slog.Logger, options ...Option) *Server {
	ver := version.Info().Version
	if ver == "" {
		ver = "dev"
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "powerstats",
		Version: ver,
	}, nil)

	server := &Server{
		logger:    logger.With("service", "mcp"),
		stats:     stats,
		reporter:  reporter,
		server:    mcpServer,
		httpPath:  "/mcp",
		transport: config.MCPTransportStdio,
	}

	for _, option := range options {
		option(server)
	}

	server.registerTools()

	return server
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_rail_energy",
		Description: "Get cumulative energy of the measured power rails in microwatt-seconds",
	}, s.handleGetRailEnergy)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_state_residency",
		Description: "Get time spent and entry counts of the power states of each power entity",
	}, s.handleGetStateResidency)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "dump",
		Description: "Get the human readable rail energy and state residency report",
	}, s.handleDump)
}

// Init implements the Initializer interface
func (s *Server) Init() error {
	s.logger.Info("Initializing MCP server",
		"transport", s.transport,
		"http_enabled", s.useHTTP,
		"http_path", s.httpPath)

	if !s.useHTTP || s.apiRegistry == nil {
		return nil
	}

	var handler http.Handler
	switch s.transport {
	case config.MCPTransportStreamable:
		handler = mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
			return s.server
		}, nil)
	default:
		handler = mcp.NewSSEHandler(func(req *http.Request) *mcp.Server {
			return s.server
		})
	}

	err := s.apiRegistry.Register(
		s.httpPath,
		"MCP Server",
		"Model Context Protocol server for querying rail energy and state residency",
		handler,
	)
	if err != nil {
		return err
	}

	s.logger.Info("Registered MCP HTTP handler", "path", s.httpPath, "transport", s.transport)
	return nil
}

// Name implements the Service interface
func (s *Server) Name() string {
	return "mcp"
}

// Run serves stdio, or waits for ctx when requests arrive over HTTP
func (s *Server) Run(ctx context.Context) error {
	if s.useHTTP {
		s.logger.Info("MCP server running via HTTP transport", "path", s.httpPath)
		<-ctx.Done()
		return nil
	}

	s.logger.Info("MCP server starting with stdio transport")
	return s.server.Run(ctx, mcp.NewStdioTransport())
}
