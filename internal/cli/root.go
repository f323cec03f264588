package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	jsonOutput  bool
	debugOutput bool

	groupTitleColor   = color.New(color.FgCyan, color.Bold)
	sectionTitleColor = color.New(color.FgBlue, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:     "wcmerge",
	Version: "dev",
	Short:   "Merge versions into a working directory",
	Long: `wcmerge merges one or more versions of a tree into a working directory.

Entries keep their identity across renames, so moves, swaps and rename cycles
merge like any other change. Conflicts never stop a merge: they are recorded as
issues to review and resolve before the next commit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// commandGroup lists the subcommands shown under one help heading.
type commandGroup struct {
	id    string
	title string
	cmds  []*cobra.Command
}

const toolingGroup = "tooling"

func commandGroups() []commandGroup {
	return []commandGroup{
		{"working-copy", "Working Copy:", []*cobra.Command{initCmd, addCmd, commitCmd, statusCmd}},
		{"merging", "Merging:", []*cobra.Command{mergeCmd, updateCmd, showPlanCmd, issuesCmd, resolveCmd}},
		{"history", "History:", []*cobra.Command{logCmd, leavesCmd, relationshipCmd}},
		{toolingGroup, "Tooling:", []*cobra.Command{versionCmd}},
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wcmerge version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
	},
}

// SetVersion overrides the version reported by --version and the version command.
func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// helpFunc prints help with colored section and group titles.
func helpFunc(cmd *cobra.Command, args []string) {
	var b strings.Builder
	if cmd.Long != "" {
		b.WriteString(cmd.Long + "\n\n")
	} else if cmd.Short != "" {
		b.WriteString(cmd.Short + "\n\n")
	}

	b.WriteString(sectionTitleColor.Sprint("Usage:") + "\n")
	fmt.Fprintf(&b, "  %s\n\n", cmd.UseLine())

	listed := make(map[string]bool)
	writeCmds := func(title string, match func(c *cobra.Command) bool) {
		var lines []string
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() && !listed[c.Name()] && match(c) {
				lines = append(lines, fmt.Sprintf("  %-13s %s", c.Name(), c.Short))
				listed[c.Name()] = true
			}
		}
		if len(lines) > 0 {
			b.WriteString(title + "\n" + strings.Join(lines, "\n") + "\n\n")
		}
	}
	for _, g := range cmd.Groups() {
		writeCmds(groupTitleColor.Sprint(g.Title), func(c *cobra.Command) bool { return c.GroupID == g.ID })
	}
	writeCmds(sectionTitleColor.Sprint("Additional Commands:"), func(*cobra.Command) bool { return true })

	if cmd.HasAvailableLocalFlags() || cmd.HasAvailableInheritedFlags() {
		b.WriteString(sectionTitleColor.Sprint("Flags:") + "\n")
		b.WriteString(cmd.LocalFlags().FlagUsages())
		b.WriteString(cmd.InheritedFlags().FlagUsages())
		b.WriteString("\n")
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(&b, "Use \"%s [command] --help\" for more information about a command.\n", cmd.CommandPath())
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), b.String())
}

func init() {
	rootCmd.SetHelpFunc(helpFunc)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugOutput, "debug", false, "Log debug output to stderr")

	for _, g := range commandGroups() {
		rootCmd.AddGroup(&cobra.Group{ID: g.id, Title: g.title})
		for _, c := range g.cmds {
			c.GroupID = g.id
			rootCmd.AddCommand(c)
		}
	}
	rootCmd.SetHelpCommandGroupID(toolingGroup)
	rootCmd.SetCompletionCommandGroupID(toolingGroup)
}

// Execute runs the root command and prints the error, if any, to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}
