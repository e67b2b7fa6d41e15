package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	guardmcp "github.com/ppiankov/usageguard/internal/mcp"
)

var mcpFacts factsFlags

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpFacts.register(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs usageguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: usage_access_resolve, usage_access_check, usage_access_filter.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := guardmcp.Config{
		FactsPath:    mcpFacts.factsPath,
		FactsDB:      mcpFacts.factsDB,
		AuditLogPath: mcpFacts.auditLog,
		PerUserRange: mcpFacts.perUserRange,
		Logger:       newLogger(),
		Version:      version,
	}

	srv, err := guardmcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "usageguard MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
