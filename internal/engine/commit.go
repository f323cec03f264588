package engine

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// Commit records the tracked entries as they are on disk as a new version on
// top of the working parents. It refuses while merge issues are unresolved.
// Tracked entries missing from disk are dropped.
func (e *Engine) Commit(ctx context.Context, req *CommitRequest) (*CommitResult, error) {
	var result *CommitResult

	err := e.withLock("commit", func() error {
		ws, err := e.loadState()
		if err != nil {
			return err
		}
		if n := len(ws.UnresolvedIssues()); n > 0 {
			return fmt.Errorf("%w: %d left (see 'wcmerge issues')", ErrUnresolvedIssues, n)
		}

		snap, err := e.scan(ctx, ws)
		if err != nil {
			return fmt.Errorf("failed to scan working directory: %w", err)
		}

		// Store the content of every file; ids are recomputed by the store.
		tree := snap.tree
		for _, id := range tree.IDs() {
			entry, _ := tree.Get(id)
			if entry.Kind != repo.KindFile {
				continue
			}
			data, err := snap.local.ReadBlob(ctx, entry.ContentID)
			if err != nil {
				return err
			}
			cid, err := e.store.PutBlob(ctx, data)
			if err != nil {
				return fmt.Errorf("failed to store content: %w", err)
			}
			entry.ContentID = cid
			tree.Put(entry)
		}

		if !ws.MergePending() {
			same, err := e.sameAsParent(ctx, ws.Parent(), tree)
			if err != nil {
				return err
			}
			if same {
				return ErrNothingToCommit
			}
		}

		node, err := repo.Commit(ctx, e.store, repo.CommitRequest{
			GraphID: ws.GraphID,
			Parents: ws.Parents,
			Tree:    tree,
			Message: req.Message,
			Time:    e.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}

		removed := make([]string, 0, len(snap.missing))
		for _, id := range snap.missing {
			if p, err := ws.PathOf(id); err == nil {
				removed = append(removed, p)
			}
		}
		sort.Strings(removed)

		for id := range ws.Entries {
			ws.Untrack(id)
		}
		for _, id := range tree.IDs() {
			if id == repo.RootID {
				continue
			}
			entry, _ := tree.Get(id)
			ws.Track(entry, false)
		}
		ws.Parents = []string{node.ID()}
		ws.ClearResolved()

		if err := e.saveState(ws); err != nil {
			return err
		}
		result = &CommitResult{
			Version: node.ID(),
			Parents: node.Parents(),
			Entries: tree.Len() - 1,
			Removed: removed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("version committed",
		zap.String("version", result.Version),
		zap.Strings("parents", result.Parents),
		zap.Int("entries", result.Entries))
	return result, nil
}

// sameAsParent reports whether tree encodes identically to the parent's tree.
// With no parent, only an empty tree counts as unchanged.
func (e *Engine) sameAsParent(ctx context.Context, parent string, tree *repo.Tree) (bool, error) {
	if parent == "" {
		return tree.Len() <= 1, nil
	}
	pt, err := e.store.FetchTree(ctx, parent)
	if err != nil {
		return false, fmt.Errorf("failed to fetch parent tree: %w", err)
	}
	a, err := tree.Encode()
	if err != nil {
		return false, err
	}
	b, err := pt.Encode()
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
