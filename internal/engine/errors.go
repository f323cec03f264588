package engine

import (
	"errors"
	"fmt"

	"github.com/danieljhkim/wcmerge/internal/planner"
)

var (
	// ErrNotInitialized indicates the working copy has no saved state.
	ErrNotInitialized = errors.New("working copy not initialized (run 'wcmerge init')")

	// ErrAlreadyInitialized indicates init on an existing working copy.
	ErrAlreadyInitialized = errors.New("working copy already initialized")

	// ErrUnresolvedIssues indicates merge issues that must be resolved first.
	ErrUnresolvedIssues = errors.New("unresolved merge issues")

	// ErrNothingToCommit indicates a working copy identical to its parent.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrMultipleLeaves indicates an update target that is not unique.
	ErrMultipleLeaves = errors.New("more than one descendant leaf")

	// ErrNoParent indicates an operation that needs a committed parent.
	ErrNoParent = errors.New("working copy has no parent version")

	// ErrStateChanged indicates the working state moved between computing
	// and applying a merge.
	ErrStateChanged = errors.New("working copy changed since the merge was computed")

	// ErrNotFound indicates a path or entry that is not tracked.
	ErrNotFound = errors.New("not found")
)

// StepError reports the plan step execution stopped at. Steps before Index
// were applied; nothing was rolled back.
type StepError struct {
	Index int
	Step  planner.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Step.Describe(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
