package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the history of the working copy",
	Long:  `List the versions reachable from the working copy's parents, newest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := eng.Log(context.Background(), logLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(entries)
		}
		if len(entries) == 0 {
			PrintEmptyState("No versions yet")
			return nil
		}
		for _, e := range entries {
			_, _ = headerColor.Printf("%s", shortID(e.ID))
			_, _ = dimColor.Printf("  %s", e.Time.Local().Format("2006-01-02 15:04"))
			if len(e.Parents) > 1 {
				_, _ = warningColor.Printf("  merge of %s", joinShort(e.Parents))
			}
			fmt.Println()
			if e.Message != "" {
				fmt.Printf("    %s\n", e.Message)
			}
		}
		return nil
	},
}

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "List versions without descendants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		leaves, err := eng.Leaves(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(leaves)
		}
		if len(leaves) == 0 {
			PrintEmptyState("No versions yet")
			return nil
		}
		PrintBullets(leaves, 0)
		return nil
	},
}

var relationshipCmd = &cobra.Command{
	Use:   "relationship <v1> <v2>",
	Short: "Show how two versions are related",
	Long: `Classify v1 relative to v2: same, ancestor, descendant, peer (sharing an
ancestor) or unrelated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		rel, err := eng.Relationship(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]string{"v1": args[0], "v2": args[1], "relationship": rel.String()})
		}
		fmt.Println(rel.String())
		return nil
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Show at most this many versions")
}
