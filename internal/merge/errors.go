package merge

import "errors"

var (
	// ErrEmptyMergeSet indicates a merge request without versions.
	ErrEmptyMergeSet = errors.New("merge set is empty")

	// ErrNotLeaf indicates a merge-set member with descendants.
	ErrNotLeaf = errors.New("version is not a leaf")

	// ErrForeignVersion indicates a version from another graph.
	ErrForeignVersion = errors.New("version belongs to another repository")

	// ErrMergePending indicates a working copy holding an uncommitted merge.
	ErrMergePending = errors.New("working copy has an uncommitted merge")

	// ErrObstructed indicates untracked items in the way of the merge result.
	ErrObstructed = errors.New("untracked files would be overwritten or lost")

	// ErrNotPortable indicates portability hazards in strict mode.
	ErrNotPortable = errors.New("merge result has non-portable names")

	// ErrBadState indicates an operation not allowed in the session's state.
	ErrBadState = errors.New("invalid merge session state")

	// ErrDeadlock indicates structural changes that no order can apply.
	ErrDeadlock = errors.New("cannot order structural changes")
)
