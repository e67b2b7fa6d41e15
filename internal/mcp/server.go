package mcp

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/usageguard/internal/guard"
)

// Config holds MCP server configuration.
type Config struct {
	FactsPath    string
	FactsDB      string
	AuditLogPath string
	PerUserRange int
	Logger       *slog.Logger
	Version      string
}

// Server exposes usage access decisions as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	guard     *guard.Guard
}

// New creates an MCP server with loaded identity facts and tools.
func New(cfg Config) (*Server, error) {
	g, err := guard.New(guard.Config{
		FactsPath:    cfg.FactsPath,
		FactsDB:      cfg.FactsDB,
		AuditLogPath: cfg.AuditLogPath,
		PerUserRange: cfg.PerUserRange,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create guard: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s := &Server{guard: g}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "usageguard",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the facts store and audit log.
func (s *Server) Close() error {
	return s.guard.Close()
}

// registerTools adds all usageguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "usage_access_resolve",
		Description: "Resolve the network-usage access level (DEFAULT, USER, DEVICESUMMARY, DEVICE) granted to a caller identity.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "usage_access_check",
		Description: "Check whether a caller at a given access level may see the usage data of a target uid.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "usage_access_filter",
		Description: "Resolve a caller and return the subset of target uids whose usage data it may see.",
	}, s.handleFilter)
}
