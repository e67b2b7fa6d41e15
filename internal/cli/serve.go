package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/server"
)

var (
	serveFacts       factsFlags
	servePort        int
	serveMetricsAddr string
	serveAlerts      string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFacts.register(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 50051, "gRPC listen port")
	serveCmd.Flags().StringVar(&serveAlerts, "alerts", "", "Path to YAML file with webhook alert destinations")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Address for the Prometheus /metrics endpoint (e.g. :9090)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC access server",
	Long: "Runs usageguard as a central access server over gRPC.\n" +
		"Clients resolve callers and filter uids remotely.\n" +
		"Supports hot-reload of the facts file.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg := server.Config{
		Port:         servePort,
		MetricsAddr:  serveMetricsAddr,
		FactsPath:    serveFacts.factsPath,
		FactsDB:      serveFacts.factsDB,
		AuditLogPath: serveFacts.auditLog,
		PerUserRange: serveFacts.perUserRange,
		AlertsPath:   serveAlerts,
		Logger:       logger,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchPaths := srv.Guard().WatchPaths()
	if len(watchPaths) > 0 {
		reloader, err := server.NewReloader(srv.ReloadFacts, watchPaths, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down access server...")
		cancel()
		srv.GracefulStop()
	}()

	fmt.Fprintf(os.Stderr, "usageguard access server listening on :%d\n", servePort)
	if serveFacts.factsDB != "" {
		fmt.Fprintf(os.Stderr, "Facts: %s (sqlite)\n", serveFacts.factsDB)
	} else if len(watchPaths) > 0 {
		fmt.Fprintf(os.Stderr, "Facts: %s (hot-reload enabled)\n", watchPaths[0])
	}
	if serveMetricsAddr != "" {
		fmt.Fprintf(os.Stderr, "Metrics: http://%s/metrics\n", serveMetricsAddr)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
