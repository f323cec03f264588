package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List unresolved merge issues",
	Long: `List the conflicts recorded by the last merge that are not resolved yet.
Each issue shows the competing values and the one the merge chose.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		issues, err := eng.Issues(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(issues)
		}
		if len(issues) == 0 {
			PrintEmptyState("No unresolved issues")
			return nil
		}

		rows := make([][]string, 0, len(issues))
		for _, is := range issues {
			rows = append(rows, []string{string(is.Kind), is.Path, is.Chosen, shortID(is.EntryID)})
		}
		PrintSection(plural(len(issues), "unresolved issue", ""))
		PrintTable([]string{"KIND", "PATH", "CHOSEN", "ENTRY"}, rows)

		fmt.Println()
		for _, is := range issues {
			PrintInfo("  " + is.String())
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path|entry-id>",
	Short: "Mark the issues of an entry resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.MarkResolved(context.Background(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		PrintSuccess(fmt.Sprintf("Resolved %s", plural(result.Resolved, "issue", "issues")))
		if result.Remaining > 0 {
			PrintLabelValue("Remaining", fmt.Sprint(result.Remaining))
		}
		return nil
	},
}
