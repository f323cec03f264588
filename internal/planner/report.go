package planner

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// Report renders a plan for a dry run or after execution. With verbose set,
// every step is listed with its reason.
func Report(p *Plan, verbose bool) string {
	var b strings.Builder

	if p.Empty() {
		b.WriteString("nothing to do\n")
	} else {
		fmt.Fprintf(&b, "%s\n", english.Plural(len(p.Steps), "step", ""))
	}

	s := p.Stats
	line := func(label string, added, changed, deleted int) {
		fmt.Fprintf(&b, "  %-6s %s added, %s changed, %s deleted\n", label,
			humanize.Comma(int64(added)), humanize.Comma(int64(changed)), humanize.Comma(int64(deleted)))
	}
	line("files", s.FilesAdded, s.FilesChanged, s.FilesDeleted)
	line("dirs", s.DirsAdded, s.DirsChanged, s.DirsDeleted)
	if s.FilesMerged > 0 {
		fmt.Fprintf(&b, "  %s merged cleanly\n", english.Plural(s.FilesMerged, "file", ""))
	}
	if s.Parked > 0 {
		fmt.Fprintf(&b, "  %s parked during the update\n", english.Plural(s.Parked, "entry", "entries"))
	}

	if verbose && !p.Empty() {
		b.WriteString("\nsteps:\n")
		width := len(fmt.Sprint(len(p.Steps)))
		for i, st := range p.Steps {
			fmt.Fprintf(&b, "  %*d. %s", width, i+1, st.Describe())
			if reason := ReasonOf(st); reason != "" {
				fmt.Fprintf(&b, "  # %s", reason)
			}
			b.WriteByte('\n')
		}
	}

	if len(p.Warnings) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", english.PluralWord(len(p.Warnings), "warning", ""))
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	if open := Unresolved(p.Issues); len(open) > 0 {
		fmt.Fprintf(&b, "\n%s:\n", english.Plural(len(open), "unresolved issue", ""))
		for _, is := range open {
			fmt.Fprintf(&b, "  %s\n", is)
		}
	}
	return b.String()
}
