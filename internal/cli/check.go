package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/usageguard/internal/guard"
	"github.com/ppiankov/usageguard/internal/model"
)

var (
	checkFacts  factsFlags
	checkTarget int
	checkCaller int
	checkLevel  string
	checkFormat string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkFacts.register(checkCmd)
	checkCmd.Flags().IntVar(&checkTarget, "target", 0, "Uid whose usage data is requested (required)")
	checkCmd.Flags().IntVar(&checkCaller, "caller", 0, "Requesting uid (required)")
	checkCmd.Flags().StringVar(&checkLevel, "level", "DEFAULT", "Caller access level (DEFAULT|USER|DEVICESUMMARY|DEVICE)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("target")
	checkCmd.MarkFlagRequired("caller")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a caller may see a target uid",
	Long: "Evaluates the visibility predicate for one target uid.\n\n" +
		"Exit code 0 if visible, 1 if not.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	level, err := model.ParseAccessLevel(checkLevel)
	if err != nil {
		return err
	}

	g, err := guard.New(checkFacts.guardConfig())
	if err != nil {
		return err
	}
	allowed := g.Check(checkTarget, checkCaller, level)
	g.Close()

	w := cmd.OutOrStdout()
	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"target_uid": checkTarget,
			"caller_uid": checkCaller,
			"level":      level.String(),
			"allowed":    allowed,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
	default:
		verdict := "denied"
		if allowed {
			verdict = "allowed"
		}
		fmt.Fprintf(w, "%s: uid %d at %s -> uid %d\n", verdict, checkCaller, level, checkTarget)
	}

	if !allowed {
		os.Exit(1)
	}
	return nil
}
