package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/identity"
	"github.com/ppiankov/usageguard/internal/identity/sqlstore"
	"github.com/ppiankov/usageguard/internal/model"
)

var (
	factsDBPath  string
	factsUID     int
	factsPackage string
)

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.PersistentFlags().StringVar(&factsDBPath, "db", "", "Path to SQLite facts database (required)")
	factsCmd.MarkPersistentFlagRequired("db")

	factsCmd.AddCommand(factsImportCmd, factsGrantCmd, factsRevokeCmd, factsAppOpCmd)
	for _, c := range []*cobra.Command{factsGrantCmd, factsRevokeCmd} {
		c.Flags().IntVar(&factsUID, "uid", 0, "Uid for uid-scoped facts")
		c.Flags().StringVar(&factsPackage, "package", "", "Package for package-scoped facts")
	}
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Manage a SQLite identity facts database",
	Long: "Writes grants into the database read by --facts-db.\n" +
		"Changes are visible to a running server on its next request.",
}

var factsImportCmd = &cobra.Command{
	Use:   "import <facts.yaml>",
	Short: "Import every grant from a facts file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactsImport,
}

var factsGrantCmd = &cobra.Command{
	Use:   "grant <fact>",
	Short: "Grant a fact to a uid or package",
	Long: "Package-scoped facts: carrier_privileges, device_owner, profile_owner.\n" +
		"Uid-scoped facts: network_stack, usage_stats_permission, read_history_permission.",
	Args: cobra.ExactArgs(1),
	RunE: runFactsGrant,
}

var factsRevokeCmd = &cobra.Command{
	Use:   "revoke <fact>",
	Short: "Revoke a fact from a uid or package",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactsRevoke,
}

var factsAppOpCmd = &cobra.Command{
	Use:   "set-app-op <uid> <package> <allowed|default|denied>",
	Short: "Set the usage-stats app-op mode for a uid/package pair",
	Args:  cobra.ExactArgs(3),
	RunE:  runFactsAppOp,
}

func openFactsDB() (*sqlstore.Store, error) {
	return sqlstore.Open(factsDBPath, newLogger())
}

func runFactsImport(cmd *cobra.Command, args []string) error {
	reg, hash, err := identity.Load(args[0])
	if err != nil {
		return err
	}
	store, err := openFactsDB()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Import(context.Background(), reg.Facts()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%s) into %s\n", args[0], hash, factsDBPath)
	return nil
}

func runFactsGrant(cmd *cobra.Command, args []string) error {
	store, err := openFactsDB()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Grant(context.Background(), model.Fact(args[0]), factsUID, factsPackage); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "granted %s\n", args[0])
	return nil
}

func runFactsRevoke(cmd *cobra.Command, args []string) error {
	store, err := openFactsDB()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Revoke(context.Background(), model.Fact(args[0]), factsUID, factsPackage); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}

func runFactsAppOp(cmd *cobra.Command, args []string) error {
	uid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid uid %q: %w", args[0], err)
	}
	mode, err := model.ParseAppOpMode(args[2])
	if err != nil {
		return err
	}

	store, err := openFactsDB()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetAppOp(context.Background(), uid, args[1], mode); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "app-op %d/%s = %s\n", uid, args[1], mode)
	return nil
}
