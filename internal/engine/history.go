package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/danieljhkim/wcmerge/internal/ancestry"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/walker"
)

// Log lists the history of the working parents, newest generation first.
// A limit of zero lists everything.
func (e *Engine) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}
	entries := []LogEntry{}
	if len(ws.Parents) == 0 {
		return entries, nil
	}

	w := walker.New(e.store)
	err = w.Walk(ctx, ws.Parents, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		entries = append(entries, LogEntry{
			ID:         n.ID(),
			Parents:    n.Parents(),
			Generation: n.Generation(),
			Message:    n.Message(),
			Time:       n.Time(),
		})
		if limit > 0 && len(entries) >= limit {
			return walker.Stop, nil
		}
		return walker.Continue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}
	return entries, nil
}

// Relationship classifies v1 relative to v2. Both may be id prefixes.
func (e *Engine) Relationship(ctx context.Context, v1, v2 string) (ancestry.Relationship, error) {
	ws, err := e.loadState()
	if err != nil {
		return 0, err
	}
	a, err := e.store.ResolvePrefix(ctx, ws.GraphID, v1)
	if err != nil {
		return 0, err
	}
	b, err := e.store.ResolvePrefix(ctx, ws.GraphID, v2)
	if err != nil {
		return 0, err
	}
	return ancestry.New(e.store, e.log).Relationship(ctx, a, b)
}

// Leaves returns the versions of the graph that have no children.
func (e *Engine) Leaves(ctx context.Context) ([]string, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}
	leaves, err := e.store.FetchLeaves(ctx, ws.GraphID)
	if err != nil {
		return nil, err
	}
	sort.Strings(leaves)
	return leaves, nil
}
