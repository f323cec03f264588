package planner

import "github.com/danieljhkim/wcmerge/internal/repo"

// Stats counts what a plan does. Each entry is counted once per category.
type Stats struct {
	DirsAdded    int `json:"dirs_added" yaml:"dirs_added"`
	DirsChanged  int `json:"dirs_changed" yaml:"dirs_changed"`
	DirsDeleted  int `json:"dirs_deleted" yaml:"dirs_deleted"`
	FilesAdded   int `json:"files_added" yaml:"files_added"`
	FilesChanged int `json:"files_changed" yaml:"files_changed"`
	FilesDeleted int `json:"files_deleted" yaml:"files_deleted"`

	// FilesMerged counts files whose content merged without conflict
	FilesMerged int `json:"files_merged" yaml:"files_merged"`

	// Parked counts entries routed through the parking lot
	Parked int `json:"parked" yaml:"parked"`
}

// Plan is an ordered list of steps with the bookkeeping needed to report and
// apply it.
type Plan struct {
	// Session names the parking lot directory of this plan
	Session string

	// ParkingLot is the parking directory relative to the working root
	ParkingLot string

	// Baseline is the common ancestor the merge compared against
	Baseline string

	// Parents is the parent set of the working copy after the plan is applied
	Parents []string

	Steps    []Step
	Stats    Stats
	Issues   []Issue
	Warnings []string

	changed map[string]bool
}

// NewPlan creates an empty plan for a parking session.
func NewPlan(session, parkingLot string) *Plan {
	return &Plan{
		Session:    session,
		ParkingLot: parkingLot,
		Steps:      []Step{},
		Issues:     []Issue{},
	}
}

// Empty reports whether the plan has no steps.
func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// HasIssues reports whether the plan carries unresolved issues.
func (p *Plan) HasIssues() bool {
	for _, is := range p.Issues {
		if !is.Resolved {
			return true
		}
	}
	return false
}

// AddIssue records an issue.
func (p *Plan) AddIssue(is Issue) {
	p.Issues = append(p.Issues, is)
}

// AddWarning records a warning.
func (p *Plan) AddWarning(msg string) {
	p.Warnings = append(p.Warnings, msg)
}

// Add appends a step and updates the statistics.
func (p *Plan) Add(s Step) {
	p.Steps = append(p.Steps, s)

	switch s := s.(type) {
	case Move:
		if s.Parking.Parks() {
			p.Stats.Parked++
			return
		}
		p.countChanged(s.ID, s.IsDir)
	case Remove:
		if s.EntryKind == repo.KindDir {
			p.Stats.DirsDeleted++
		} else {
			p.Stats.FilesDeleted++
		}
	case GetFromRepo:
		if s.Entry.IsDir() {
			p.Stats.DirsAdded++
		} else {
			p.Stats.FilesAdded++
		}
	case Alter:
		if s.Merged && !s.Conflicted {
			p.Stats.FilesMerged++
		}
		p.countChanged(s.Entry.ID, s.Entry.IsDir())
	}
}

// countChanged counts an entry as changed at most once.
func (p *Plan) countChanged(id string, isDir bool) {
	if p.changed == nil {
		p.changed = make(map[string]bool)
	}
	if p.changed[id] {
		return
	}
	p.changed[id] = true
	if isDir {
		p.Stats.DirsChanged++
	} else {
		p.Stats.FilesChanged++
	}
}

// StepsOf returns the steps of one kind, in order.
func (p *Plan) StepsOf(kind StepKind) []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Kind() == kind {
			out = append(out, s)
		}
	}
	return out
}
