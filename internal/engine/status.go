package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// Status compares the working directory with the tracked state.
func (e *Engine) Status(ctx context.Context) (*StatusResult, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}
	snap, err := e.scan(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("failed to scan working directory: %w", err)
	}

	result := &StatusResult{
		Root:         e.paths.Root,
		GraphID:      ws.GraphID,
		Parents:      ws.Parents,
		MergePending: ws.MergePending(),
		Modified:     []string{},
		Missing:      []string{},
		Added:        []string{},
		Untracked:    []string{},
		Issues:       len(ws.UnresolvedIssues()),
	}

	for _, id := range snap.tree.IDs() {
		if id == repo.RootID {
			continue
		}
		disk, _ := snap.tree.Get(id)
		p, err := snap.tree.Path(id)
		if err != nil {
			return nil, err
		}
		te := ws.Entries[id]
		switch {
		case te.PendingAdd:
			result.Added = append(result.Added, p)
		case !disk.SameContent(te.Entry) || !disk.SameAttrs(te.Entry):
			result.Modified = append(result.Modified, p)
		}
	}
	for _, id := range snap.missing {
		if p, err := ws.PathOf(id); err == nil {
			result.Missing = append(result.Missing, p)
		}
	}
	for _, u := range snap.untracked {
		result.Untracked = append(result.Untracked, u.Path)
	}

	sort.Strings(result.Modified)
	sort.Strings(result.Missing)
	sort.Strings(result.Added)
	sort.Strings(result.Untracked)
	return result, nil
}
