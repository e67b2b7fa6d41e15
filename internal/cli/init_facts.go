package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/identity"
)

var (
	initFactsPath  string
	initFactsForce bool
)

func init() {
	rootCmd.AddCommand(initFactsCmd)
	initFactsCmd.Flags().StringVar(&initFactsPath, "path", "", "Where to write the facts file (default ~/.usageguard/facts.yaml)")
	initFactsCmd.Flags().BoolVar(&initFactsForce, "force", false, "Overwrite an existing facts file")
}

var initFactsCmd = &cobra.Command{
	Use:   "init-facts",
	Short: "Write a commented identity facts file",
	Long: "Creates an identity facts file that grants nothing. Every caller resolves\n" +
		"to DEFAULT until grants are added.",
	RunE: runInitFacts,
}

func runInitFacts(cmd *cobra.Command, args []string) error {
	path := initFactsPath
	if path == "" {
		path = identity.DefaultPath()
		if path == "" {
			return fmt.Errorf("cannot determine home directory; use --path")
		}
	}

	wrote, err := writeIfMissing(path, identity.DefaultFactsYAML(), initFactsForce)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if !wrote {
		fmt.Fprintf(w, "%s already exists (use --force to overwrite).\n", path)
		return nil
	}
	fmt.Fprintf(w, "Created: %s\n\n", path)
	fmt.Fprintln(w, "Verify:")
	fmt.Fprintf(w, "  usageguard resolve --facts %s --uid 1000\n", path)
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
