package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/guard"
	"github.com/ppiankov/usageguard/internal/model"
)

var (
	resolveFacts   factsFlags
	resolveUID     int
	resolvePID     int
	resolvePackage string
	resolveTargets []int
	resolveFormat  string
)

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveFacts.register(resolveCmd)
	resolveCmd.Flags().IntVar(&resolveUID, "uid", 0, "Calling uid (required)")
	resolveCmd.Flags().IntVar(&resolvePID, "pid", 0, "Calling process id")
	resolveCmd.Flags().StringVar(&resolvePackage, "package", "", "Calling package name")
	resolveCmd.Flags().IntSliceVar(&resolveTargets, "target", nil, "Target uids to filter by the resolved level (repeatable)")
	resolveCmd.Flags().StringVarP(&resolveFormat, "format", "f", "text", "Output format (text|json)")
	resolveCmd.MarkFlagRequired("uid")
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the access level of a caller",
	Long: "Runs the caller identity through the resolution order and prints the\n" +
		"granted level, the rule that decided it, and any identity queries that\n" +
		"failed. With --target, also prints which target uids are visible.",
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	g, err := guard.New(resolveFacts.guardConfig())
	if err != nil {
		return err
	}
	defer g.Close()

	id := model.CallerIdentity{PID: resolvePID, UID: resolveUID, Package: resolvePackage}
	var d guard.Decision
	if cmd.Flags().Changed("target") {
		d = g.Filter(context.Background(), id, resolveTargets)
	} else {
		d = g.Resolve(context.Background(), id)
	}
	return printDecision(cmd.OutOrStdout(), d, resolveFormat)
}

func printDecision(w io.Writer, d guard.Decision, format string) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	case "text", "":
		fmt.Fprintf(w, "level:   %s\n", d.Level)
		fmt.Fprintf(w, "rule:    %s\n", d.Rule)
		if d.Facts != nil && len(d.Facts.Failed) > 0 {
			failed := make([]string, len(d.Facts.Failed))
			for i, f := range d.Facts.Failed {
				failed[i] = string(f)
			}
			fmt.Fprintf(w, "failed:  %s\n", strings.Join(failed, ", "))
		}
		if d.Visible != nil {
			fmt.Fprintf(w, "visible: %v\n", d.Visible)
		}
	default:
		return fmt.Errorf("unknown format %q: use text or json", format)
	}
	return nil
}
