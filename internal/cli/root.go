package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/guard"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "usageguard",
	Short: "Access control for network usage statistics",
	Long: "Decides how much network usage data a caller may read.\n" +
		"Callers resolve to DEFAULT, USER, DEVICESUMMARY or DEVICE from their\n" +
		"identity grants; every target uid is then checked against that level.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log provider failures and reloads to stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// factsFlags are the identity source and uid encoding flags shared by
// every command that resolves callers.
type factsFlags struct {
	factsPath    string
	factsDB      string
	perUserRange int
	auditLog     string
}

func (f *factsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.factsPath, "facts", "", "Path to identity facts YAML (default ~/.usageguard/facts.yaml)")
	cmd.Flags().StringVar(&f.factsDB, "facts-db", "", "Path to SQLite facts database (instead of --facts)")
	cmd.Flags().IntVar(&f.perUserRange, "per-user-range", 0, "Uids per user (default 100000)")
	cmd.Flags().StringVar(&f.auditLog, "audit-log", "", "Path to audit log JSONL file")
	cmd.MarkFlagsMutuallyExclusive("facts", "facts-db")
}

func (f *factsFlags) guardConfig() guard.Config {
	return guard.Config{
		FactsPath:    f.factsPath,
		FactsDB:      f.factsDB,
		AuditLogPath: f.auditLog,
		PerUserRange: f.perUserRange,
		Logger:       newLogger(),
	}
}
