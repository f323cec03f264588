package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/planner"
)

// Issues returns the unresolved issues of the last merge.
func (e *Engine) Issues(ctx context.Context) ([]planner.Issue, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}
	issues := ws.UnresolvedIssues()
	if issues == nil {
		issues = []planner.Issue{}
	}
	return issues, nil
}

// MarkResolved marks every issue of an entry resolved. The entry may be named
// by its id or by the path recorded in the issue.
func (e *Engine) MarkResolved(ctx context.Context, entry string) (*ResolveResult, error) {
	var result *ResolveResult
	err := e.withLock("resolve", func() error {
		ws, err := e.loadState()
		if err != nil {
			return err
		}

		id := entry
		byID := false
		for _, is := range ws.UnresolvedIssues() {
			if is.EntryID == entry {
				byID = true
				break
			}
		}
		if !byID {
			for _, is := range ws.UnresolvedIssues() {
				if is.Path == entry {
					id = is.EntryID
					break
				}
			}
		}

		n, err := ws.MarkResolved(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if err := e.saveState(ws); err != nil {
			return err
		}
		result = &ResolveResult{EntryID: id, Resolved: n, Remaining: len(ws.UnresolvedIssues())}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("issues resolved", zap.String("entry", result.EntryID), zap.Int("resolved", result.Resolved))
	return result, nil
}
