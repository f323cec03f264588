package engine

import (
	"time"

	"github.com/danieljhkim/wcmerge/internal/merge"
	"github.com/danieljhkim/wcmerge/internal/planner"
)

// InitResult represents the result of initializing a working copy.
type InitResult struct {
	// Root is the working directory root
	Root string `json:"root"`

	// GraphID identifies the new repository graph
	GraphID string `json:"graph"`
}

// AddRequest represents a request to start tracking paths.
type AddRequest struct {
	// CWD is the current working directory
	CWD string

	// Paths are the paths to add (relative to CWD or absolute).
	// Directories are added recursively.
	Paths []string
}

// AddResult represents the result of adding paths.
type AddResult struct {
	// Added is the list of root-relative paths now pending addition
	Added []string `json:"added"`

	// Skipped lists paths already tracked or of an unsupported type
	Skipped []string `json:"skipped"`
}

// CommitRequest represents a request to record the working copy as a new version.
type CommitRequest struct {
	// Message describes the version
	Message string
}

// CommitResult represents the result of a commit.
type CommitResult struct {
	// Version is the id of the new version
	Version string `json:"version"`

	// Parents are the parents of the new version
	Parents []string `json:"parents"`

	// Entries is the number of entries in the committed tree
	Entries int `json:"entries"`

	// Removed lists tracked paths missing from disk, dropped by this commit
	Removed []string `json:"removed"`
}

// StatusResult represents the state of the working copy.
type StatusResult struct {
	Root    string   `json:"root"`
	GraphID string   `json:"graph"`
	Parents []string `json:"parents"`

	// MergePending is true after a merge until the next commit
	MergePending bool `json:"mergePending"`

	// Modified lists tracked paths whose content or attributes changed
	Modified []string `json:"modified"`

	// Missing lists tracked paths absent from disk
	Missing []string `json:"missing"`

	// Added lists paths pending addition
	Added []string `json:"added"`

	// Untracked lists paths on disk the working copy does not track
	Untracked []string `json:"untracked"`

	// Issues is the number of unresolved merge issues
	Issues int `json:"issues"`
}

// MergeRequest represents a request to merge versions into the working copy.
type MergeRequest struct {
	// Versions are the merge-set members (ids or unique prefixes)
	Versions []string

	// Baseline overrides the computed common ancestor
	Baseline string

	// AllowNonLeaf permits members that have descendants
	AllowNonLeaf bool

	// DryRun computes the plan without touching the disk
	DryRun bool

	// SavePlan writes the computed plan to this file when set
	SavePlan string
}

// MergeResult represents a computed (and possibly applied) merge.
type MergeResult struct {
	// Session is the merge session the plan came from
	Session *merge.Session `json:"-"`

	// Plan is the computed plan
	Plan *planner.Plan `json:"-"`

	// Applied is true once the plan was executed
	Applied bool `json:"applied"`

	// Stats counts what the plan does
	Stats planner.Stats `json:"stats"`

	// Parents are the working copy's parents after the merge
	Parents []string `json:"parents"`

	Issues   []planner.Issue `json:"issues"`
	Warnings []string        `json:"warnings"`

	// startParents are the working parents the plan was computed against
	startParents []string
}

// UpdateRequest represents a request to move the working copy to the unique
// leaf descending from its parent.
type UpdateRequest struct {
	DryRun bool
}

// UpdateResult represents the result of an update.
type UpdateResult struct {
	// UpToDate is true when the parent is already a leaf
	UpToDate bool `json:"upToDate"`

	// Target is the leaf merged into the working copy
	Target string `json:"target,omitempty"`

	Merge *MergeResult `json:"merge,omitempty"`
}

// LogEntry is one version in the history listing.
type LogEntry struct {
	ID         string    `json:"id"`
	Parents    []string  `json:"parents"`
	Generation int       `json:"generation"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// ResolveResult represents the result of marking issues resolved.
type ResolveResult struct {
	EntryID  string `json:"entry"`
	Resolved int    `json:"resolved"`

	// Remaining is the number of unresolved issues left
	Remaining int `json:"remaining"`
}
