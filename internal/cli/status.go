package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show working copy status",
	Long: `Show the working copy's parents and the tracked paths that were modified,
added or removed since, plus untracked paths and unresolved merge issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.Status(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}

		PrintLabelValue("Root", result.Root)
		if len(result.Parents) == 0 {
			PrintLabelValue("Parent", "(none)")
		} else {
			PrintLabelValue("Parents", joinShort(result.Parents))
		}
		if result.MergePending {
			PrintWarning("Merge in progress; commit to record it")
		}
		if result.Issues > 0 {
			PrintWarning(fmt.Sprintf("%s unresolved (see 'wcmerge issues')", plural(result.Issues, "issue", "issues")))
		}

		sections := []struct {
			title string
			paths []string
		}{
			{"Modified:", result.Modified},
			{"Added:", result.Added},
			{"Missing:", result.Missing},
			{"Untracked:", result.Untracked},
		}
		clean := true
		for _, s := range sections {
			if len(s.paths) == 0 {
				continue
			}
			clean = false
			fmt.Println()
			PrintSubsection(s.title)
			PrintBullets(s.paths, 2)
		}
		if clean {
			fmt.Println()
			PrintEmptyState("Working copy clean")
		}
		return nil
	},
}
