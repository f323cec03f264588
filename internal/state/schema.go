package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// WorkingState is the persisted state of a working copy.
type WorkingState struct {
	// GraphID is the id of the repository graph the working copy belongs to
	GraphID string `json:"graph"`

	// Parents are the versions the working directory was synchronized to.
	// Empty before the first commit; more than one after a merge.
	Parents []string `json:"parents"`

	// Entries maps entry identity to its tracked state
	Entries map[string]TrackedEntry `json:"entries"`

	// Issues are the conflicts recorded by the last merge
	Issues []planner.Issue `json:"issues"`

	// Updated is when the state was last saved
	Updated time.Time `json:"updated"`
}

// TrackedEntry is an entry as the working copy last recorded it.
type TrackedEntry struct {
	repo.Entry

	// PendingAdd marks an entry added locally but not yet committed
	PendingAdd bool `json:"pendingAdd,omitempty"`
}

// NewWorkingState creates an empty state for a graph.
func NewWorkingState(graphID string) *WorkingState {
	return &WorkingState{
		GraphID: graphID,
		Parents: []string{},
		Entries: make(map[string]TrackedEntry),
		Issues:  []planner.Issue{},
	}
}

// Parent returns the first parent, or "" when there is none.
func (ws *WorkingState) Parent() string {
	if len(ws.Parents) == 0 {
		return ""
	}
	return ws.Parents[0]
}

// MergePending reports whether the working copy holds an uncommitted merge.
func (ws *WorkingState) MergePending() bool {
	return len(ws.Parents) > 1
}

// Track records an entry.
func (ws *WorkingState) Track(e repo.Entry, pendingAdd bool) {
	ws.Entries[e.ID] = TrackedEntry{Entry: e.Clone(), PendingAdd: pendingAdd}
}

// Untrack forgets an entry.
func (ws *WorkingState) Untrack(id string) {
	delete(ws.Entries, id)
}

// Tree returns the tracked entries as a tree.
func (ws *WorkingState) Tree() *repo.Tree {
	t := repo.NewTree()
	for _, te := range ws.Entries {
		if te.ID == repo.RootID {
			continue
		}
		t.Put(te.Entry)
	}
	return t
}

// PathOf returns the tracked path of an entry.
func (ws *WorkingState) PathOf(id string) (string, error) {
	return ws.Tree().Path(id)
}

// PendingAdds returns the ids of entries added but not committed, sorted.
func (ws *WorkingState) PendingAdds() []string {
	var ids []string
	for id, te := range ws.Entries {
		if te.PendingAdd {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// UnresolvedIssues returns issues not yet marked resolved.
func (ws *WorkingState) UnresolvedIssues() []planner.Issue {
	return planner.Unresolved(ws.Issues)
}

// MarkResolved marks every issue of an entry resolved. It fails when the
// entry has no unresolved issue.
func (ws *WorkingState) MarkResolved(entryID string) (int, error) {
	n := 0
	for i := range ws.Issues {
		if ws.Issues[i].EntryID == entryID && !ws.Issues[i].Resolved {
			ws.Issues[i].Resolved = true
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("no unresolved issue for entry %s", entryID)
	}
	return n, nil
}

// ClearResolved drops resolved issues.
func (ws *WorkingState) ClearResolved() {
	ws.Issues = planner.Unresolved(ws.Issues)
	if ws.Issues == nil {
		ws.Issues = []planner.Issue{}
	}
}
