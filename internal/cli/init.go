package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/wcmerge/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a working copy in the current directory",
	Long: `Create a .wcmerge directory holding a new, empty repository and the
working state. Nothing is tracked until 'wcmerge add'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		paths := config.PathsAt(cwd)
		if err := paths.EnsureDirectories(); err != nil {
			return err
		}

		eng, cleanup, err := openEngine(paths)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.Init(context.Background())
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		PrintSuccess("Initialized empty working copy")
		PrintLabelValue("Root", result.Root)
		PrintLabelValue("Graph", result.GraphID)
		return nil
	},
}
