package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/wcmerge/internal/engine"
)

var commitMessage string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record the working copy as a new version",
	Long: `Record every tracked entry as it is on disk as a new version whose parents
are the working copy's parents. After a merge the new version has one parent
per merged version. Commit is refused while merge issues are unresolved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.Commit(context.Background(), &engine.CommitRequest{Message: commitMessage})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		PrintSuccess(fmt.Sprintf("Committed %s", shortID(result.Version)))
		PrintLabelValue("Entries", fmt.Sprint(result.Entries))
		if len(result.Parents) > 1 {
			PrintLabelValue("Parents", joinShort(result.Parents))
		}
		if len(result.Removed) > 0 {
			PrintSubsection("Removed (missing from disk):")
			PrintBullets(result.Removed, 2)
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Version message")
	_ = commitCmd.MarkFlagRequired("message")
}
