package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/wcmerge/internal/engine"
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Start tracking files and directories",
	Long: `Mark paths as pending additions. Directories are added recursively and
untracked parent directories are added with them. The additions are recorded
by the next commit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		result, err := eng.Add(context.Background(), &engine.AddRequest{CWD: cwd, Paths: args})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		if len(result.Added) == 0 {
			PrintInfo("Nothing to add")
			return nil
		}
		PrintSuccess(fmt.Sprintf("Added %s", plural(len(result.Added), "path", "paths")))
		PrintBullets(result.Added, 1)
		return nil
	},
}
