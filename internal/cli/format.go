package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"

	"github.com/danieljhkim/wcmerge/internal/hash"
)

// fatih/color disables itself when stdout is not a terminal.
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	pathColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintSection prints a header surrounded by blank lines.
func PrintSection(title string) {
	fmt.Println()
	_, _ = headerColor.Printf("▸ %s\n", title)
	fmt.Println()
}

func PrintSubsection(title string) {
	_, _ = pathColor.Printf("  %s\n", title)
}

func PrintSuccess(msg string) {
	_, _ = successColor.Printf("✓ %s\n", msg)
}

func PrintWarning(msg string) {
	_, _ = warningColor.Printf("⚠ %s\n", msg)
}

// PrintError writes to stderr.
func PrintError(msg string) {
	_, _ = errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

func PrintInfo(msg string) {
	fmt.Println(msg)
}

func PrintLabelValue(label, value string) {
	_, _ = labelColor.Printf("  %s: ", label)
	_, _ = dimColor.Println(value)
}

// PrintBullets prints one item per line at the given depth.
func PrintBullets(items []string, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, it := range items {
		_, _ = pathColor.Printf("%s• %s\n", indent, it)
	}
}

// PrintTable prints rows aligned under a header line. Cells stay uncolored
// so tabwriter measures them correctly.
func PrintTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	w := tabwriter.NewWriter(color.Output, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  "+strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, "  "+strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func PrintEmptyState(msg string) {
	_, _ = dimColor.Printf("  %s\n", msg)
}

// plural formats a count with its noun, e.g. "1 issue" or "3 entries".
func plural(n int, singular, pluralForm string) string {
	return english.Plural(n, singular, pluralForm)
}

// shortID abbreviates a version or entry id for display.
func shortID(id string) string {
	return hash.Short(id, 12)
}

func joinShort(ids []string) string {
	short := make([]string, len(ids))
	for i, id := range ids {
		short[i] = shortID(id)
	}
	return strings.Join(short, ", ")
}
