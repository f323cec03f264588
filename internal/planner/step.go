package planner

import (
	"fmt"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// StepKind names a step type in saved plans and reports.
type StepKind string

const (
	KindMove        StepKind = "move"
	KindRemove      StepKind = "remove"
	KindAddNew      StepKind = "add-new"
	KindUnadd       StepKind = "unadd"
	KindGetFromRepo StepKind = "get"
	KindAlter       StepKind = "alter"
)

// Parking tells whether a move goes into or out of the parking lot.
type Parking string

const (
	ParkingNone Parking = ""
	ParkSwap    Parking = "park-swap"
	ParkCycle   Parking = "park-cycle"
	ParkOrder   Parking = "park-order"
	Unpark      Parking = "unpark"
)

// Parks reports whether the move puts an entry into the parking lot.
func (p Parking) Parks() bool {
	return p == ParkSwap || p == ParkCycle || p == ParkOrder
}

// Step is one primitive operation. The set of implementations is closed.
type Step interface {
	// Kind returns the step type.
	Kind() StepKind

	// Identity returns the entry the step acts on.
	Identity() string

	// Describe returns a one-line summary.
	Describe() string

	isStep()
}

// Move renames an entry on disk, possibly through the parking lot.
type Move struct {
	ID   string
	From string
	To   string

	// ParentID and Name are the entry's new location; empty when parking
	ParentID string
	Name     string

	IsDir   bool
	Parking Parking
	Reason  string
}

// Remove deletes a file, symlink or empty directory.
type Remove struct {
	ID        string
	Path      string
	EntryKind repo.Kind
	Reason    string
}

// AddNew registers an entry that exists on disk but not in any parent as a
// pending add at Path.
type AddNew struct {
	Entry  repo.Entry
	Path   string
	Reason string
}

// Unadd drops the registration of a pending add. The file on disk is kept.
type Unadd struct {
	ID     string
	Path   string
	Reason string
}

// GetFromRepo materializes an entry from storage at Path.
type GetFromRepo struct {
	Entry  repo.Entry
	Path   string
	Reason string
}

// Alter rewrites an existing entry in place to match Entry.
type Alter struct {
	Entry repo.Entry
	Path  string

	// Content rewrites file bytes or the symlink target
	Content bool

	// Attrs rewrites the executable bit and extended attributes
	Attrs bool

	// Merged marks content produced by an automatic merge
	Merged bool

	// Conflicted marks merged content that still holds conflict markers
	Conflicted bool

	Reason string
}

func (Move) Kind() StepKind        { return KindMove }
func (Remove) Kind() StepKind      { return KindRemove }
func (AddNew) Kind() StepKind      { return KindAddNew }
func (Unadd) Kind() StepKind       { return KindUnadd }
func (GetFromRepo) Kind() StepKind { return KindGetFromRepo }
func (Alter) Kind() StepKind       { return KindAlter }

func (s Move) Identity() string        { return s.ID }
func (s Remove) Identity() string      { return s.ID }
func (s AddNew) Identity() string      { return s.Entry.ID }
func (s Unadd) Identity() string       { return s.ID }
func (s GetFromRepo) Identity() string { return s.Entry.ID }
func (s Alter) Identity() string       { return s.Entry.ID }

func (Move) isStep()        {}
func (Remove) isStep()      {}
func (AddNew) isStep()      {}
func (Unadd) isStep()       {}
func (GetFromRepo) isStep() {}
func (Alter) isStep()       {}

func (s Move) Describe() string {
	switch {
	case s.Parking.Parks():
		return fmt.Sprintf("park %s -> %s (%s)", s.From, s.To, s.Parking)
	case s.Parking == Unpark:
		return fmt.Sprintf("unpark %s -> %s", s.From, s.To)
	default:
		return fmt.Sprintf("move %s -> %s", s.From, s.To)
	}
}

func (s Remove) Describe() string {
	return fmt.Sprintf("remove %s %s", s.EntryKind, s.Path)
}

func (s AddNew) Describe() string {
	return fmt.Sprintf("add %s", s.Path)
}

func (s Unadd) Describe() string {
	return fmt.Sprintf("unadd %s", s.Path)
}

func (s GetFromRepo) Describe() string {
	return fmt.Sprintf("get %s %s", s.Entry.Kind, s.Path)
}

func (s Alter) Describe() string {
	what := "attrs"
	switch {
	case s.Conflicted:
		what = "conflicted merge"
	case s.Merged:
		what = "merge"
	case s.Content && s.Attrs:
		what = "content+attrs"
	case s.Content:
		what = "content"
	}
	return fmt.Sprintf("alter %s (%s)", s.Path, what)
}

// ReasonOf returns a step's diagnostic reason.
func ReasonOf(s Step) string {
	switch s := s.(type) {
	case Move:
		return s.Reason
	case Remove:
		return s.Reason
	case AddNew:
		return s.Reason
	case Unadd:
		return s.Reason
	case GetFromRepo:
		return s.Reason
	case Alter:
		return s.Reason
	default:
		return ""
	}
}
