package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/wcmerge/internal/engine"
	"github.com/danieljhkim/wcmerge/internal/planner"
)

var (
	mergeBaseline     string
	mergeTest         bool
	mergeVerbose      bool
	mergeAllowNonLeaf bool
	mergeSavePlan     string

	updateTest    bool
	updateVerbose bool

	showPlanVerbose bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <version>...",
	Short: "Merge versions into the working copy",
	Long: `Merge one or more versions into the working directory, including local
changes that are not committed yet.

Every entry is merged field by field: location, kind, content and attributes.
Conflicting changes are resolved automatically and recorded as issues; text
conflicts are written with conflict markers. Renames that swap or rotate names
are applied through a parking lot under .wcmerge/parking.

Use --test to review the plan without touching the disk. A plan written with
--save-plan is for review with show-plan; it is never applied as is, since the
working directory may change after it was computed. Run merge again to apply.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.Merge(context.Background(), &engine.MergeRequest{
			Versions:     args,
			Baseline:     mergeBaseline,
			AllowNonLeaf: mergeAllowNonLeaf,
			DryRun:       mergeTest,
			SavePlan:     mergeSavePlan,
		})
		if err != nil {
			if result != nil && result.Plan != nil {
				printMergeFailure(result, err)
			}
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		printMergeResult(eng, result, mergeVerbose)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Merge the newest descendant of the working parent",
	Long: `Merge the single leaf version descending from the working copy's parent.
Fails when the parent has more than one descendant leaf; merge one of them
explicitly in that case.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := eng.Update(context.Background(), &engine.UpdateRequest{DryRun: updateTest})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(result)
		}
		if result.UpToDate {
			PrintSuccess("Already up to date")
			return nil
		}
		PrintLabelValue("Target", shortID(result.Target))
		printMergeResult(eng, result.Merge, updateVerbose)
		return nil
	},
}

var showPlanCmd = &cobra.Command{
	Use:   "show-plan <file>",
	Short: "Show a plan saved by merge --save-plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read plan: %w", err)
		}
		plan, err := planner.Unmarshal(data)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(plan)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprint(out, planner.Report(plan, showPlanVerbose))
		if len(plan.Parents) > 0 {
			_, _ = fmt.Fprintf(out, "\nParents: %s\n", joinShort(plan.Parents))
		}
		return nil
	},
}

func printMergeResult(eng *engine.Engine, result *engine.MergeResult, verbose bool) {
	if result.Applied {
		PrintSection("Merge Applied")
	} else {
		PrintSection("Merge Plan")
	}
	fmt.Print(eng.PreviewMerge(result.Plan, verbose || !result.Applied))

	if len(result.Parents) > 0 {
		fmt.Println()
		PrintLabelValue("Parents", joinShort(result.Parents))
	}
	if result.Applied && len(planner.Unresolved(result.Issues)) > 0 {
		fmt.Println()
		PrintWarning("Resolve the issues above, then commit the merge.")
	}
}

func printMergeFailure(result *engine.MergeResult, err error) {
	var stepErr *engine.StepError
	if errors.As(err, &stepErr) {
		PrintError(fmt.Sprintf("Merge stopped at step %d of %d: %s",
			stepErr.Index+1, len(result.Plan.Steps), stepErr.Step.Describe()))
	}
	PrintInfo(fmt.Sprintf("Steps before the failure were applied; parked entries stay under %s", result.Plan.ParkingLot))
}

func init() {
	mergeCmd.Flags().StringVar(&mergeBaseline, "baseline", "", "Compare against this version instead of the common ancestor")
	mergeCmd.Flags().BoolVar(&mergeTest, "test", false, "Show the plan without applying it")
	mergeCmd.Flags().BoolVarP(&mergeVerbose, "verbose", "v", false, "List every step with its reason")
	mergeCmd.Flags().BoolVar(&mergeAllowNonLeaf, "allow-non-leaf", false, "Allow merging versions that have descendants")
	mergeCmd.Flags().StringVar(&mergeSavePlan, "save-plan", "", "Write the computed plan to this YAML file for review")

	updateCmd.Flags().BoolVar(&updateTest, "test", false, "Show the plan without applying it")
	updateCmd.Flags().BoolVarP(&updateVerbose, "verbose", "v", false, "List every step with its reason")

	showPlanCmd.Flags().BoolVarP(&showPlanVerbose, "verbose", "v", false, "List every step with its reason")
}
