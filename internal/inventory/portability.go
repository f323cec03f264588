package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Warning is one portability hazard found in the target view.
type Warning struct {
	Entry   string
	Path    string
	Message string

	// Conflicting is the entry a case-only collision is with
	Conflicting string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// Policy decides which names are hazardous.
type Policy interface {
	// CheckName returns the problems with a single name.
	CheckName(name string) []string

	// FoldCase reports whether names differing only in case collide.
	FoldCase() bool
}

// reservedNames are device names that cannot be used as a file base name on
// Windows, with or without an extension.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

const disallowedChars = `<>:"|?*\`

// PortabilityPolicy flags names that do not survive on common filesystems,
// plus any name matching a configured deny pattern.
type PortabilityPolicy struct {
	patterns []string
	deny     []glob.Glob
	caseFold bool
}

// NewPortabilityPolicy compiles deny patterns (gobwas/glob syntax, matched
// against the entry name).
func NewPortabilityPolicy(deny []string) (*PortabilityPolicy, error) {
	p := &PortabilityPolicy{caseFold: true}
	for _, pattern := range deny {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
		p.patterns = append(p.patterns, pattern)
		p.deny = append(p.deny, g)
	}
	return p, nil
}

// FoldCase implements Policy.
func (p *PortabilityPolicy) FoldCase() bool {
	return p.caseFold
}

// CheckName implements Policy.
func (p *PortabilityPolicy) CheckName(name string) []string {
	var problems []string

	base := strings.ToUpper(name)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if reservedNames[base] {
		problems = append(problems, "reserved device name")
	}

	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		problems = append(problems, "trailing dot or space")
	}

	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(disallowedChars, r) {
			problems = append(problems, fmt.Sprintf("disallowed character %q", r))
			break
		}
	}

	for i, g := range p.deny {
		if g.Match(name) {
			problems = append(problems, fmt.Sprintf("matches deny pattern %q", p.patterns[i]))
		}
	}
	return problems
}

// CheckForPortability checks every active target name against policy. It
// reports hazards only; it never changes bindings.
func (inv *Inventory) CheckForPortability(policy Policy) []Warning {
	var warnings []Warning

	dirIDs := make([]string, 0, len(inv.dirs))
	for id := range inv.dirs {
		dirIDs = append(dirIDs, id)
	}
	sort.Strings(dirIDs)

	for _, dirID := range dirIDs {
		d := inv.dirs[dirID]
		names := make([]string, 0, len(d.names))
		for name, s := range d.names {
			if s.target != -1 {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		folded := make(map[string]*Entry)
		for _, name := range names {
			e := inv.arena[d.names[name].target]
			for _, msg := range policy.CheckName(name) {
				warnings = append(warnings, Warning{Entry: e.ID, Path: e.Target.Path(), Message: msg})
			}
			if !policy.FoldCase() {
				continue
			}
			key := strings.ToLower(name)
			if other, ok := folded[key]; ok {
				warnings = append(warnings, Warning{
					Entry:       e.ID,
					Path:        e.Target.Path(),
					Message:     fmt.Sprintf("differs only in case from %q", other.Target.Name),
					Conflicting: other.ID,
				})
				continue
			}
			folded[key] = e
		}
	}
	return warnings
}
