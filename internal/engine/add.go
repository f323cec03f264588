package engine

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/config"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// Add starts tracking paths as pending additions. Untracked parent
// directories are added too; directories are added recursively.
func (e *Engine) Add(ctx context.Context, req *AddRequest) (*AddResult, error) {
	result := &AddResult{Added: []string{}, Skipped: []string{}}

	err := e.withLock("add", func() error {
		ws, err := e.loadState()
		if err != nil {
			return err
		}
		a := &adder{e: e, ws: ws, tree: ws.Tree(), result: result}

		for _, p := range req.Paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := resolveToRootRelative(p, req.CWD, e.paths.Root)
			if err != nil {
				return err
			}
			if err := a.addPath(rel); err != nil {
				return err
			}
		}
		return e.saveState(ws)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("paths added", zap.Int("added", len(result.Added)), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

type adder struct {
	e      *Engine
	ws     *state.WorkingState
	tree   *repo.Tree
	result *AddResult
}

// addPath adds rel, creating entries for untracked parent directories first.
func (a *adder) addPath(rel string) error {
	if rel == "" {
		return a.addChildren(repo.RootID, "")
	}

	parentID := repo.RootID
	parts := strings.Split(rel, "/")
	for i, name := range parts {
		cur := strings.Join(parts[:i+1], "/")
		last := i == len(parts)-1

		if te, ok := a.tree.Lookup(parentID, name); ok {
			if last {
				a.result.Skipped = append(a.result.Skipped, cur)
				if te.IsDir() {
					return a.addChildren(te.ID, cur)
				}
				return nil
			}
			if !te.IsDir() {
				return fmt.Errorf("%s: %s is not a directory", rel, cur)
			}
			parentID = te.ID
			continue
		}

		if last {
			return a.addEntry(parentID, cur, true)
		}
		e, ok, err := a.newEntry(parentID, cur)
		if err != nil {
			return err
		}
		if !ok || !e.IsDir() {
			return fmt.Errorf("%s: %s is not a directory", rel, cur)
		}
		a.track(e, cur)
		parentID = e.ID
	}
	return nil
}

// addEntry adds the item at rel and, for directories, everything below it.
func (a *adder) addEntry(parentID, rel string, explicit bool) error {
	e, ok, err := a.newEntry(parentID, rel)
	if err != nil {
		return err
	}
	if !ok {
		a.result.Skipped = append(a.result.Skipped, rel)
		if explicit {
			a.e.log.Warn("unsupported file type", zap.String("path", rel))
		}
		return nil
	}
	a.track(e, rel)
	if e.IsDir() {
		return a.addChildren(e.ID, rel)
	}
	return nil
}

// addChildren adds the untracked items inside a directory.
func (a *adder) addChildren(dirID, rel string) error {
	names, err := a.e.fs.ReadDir(a.e.abs(rel))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", displayPath(rel), err)
	}
	for _, name := range names {
		if dirID == repo.RootID && name == config.MetaDirName {
			continue
		}
		child := path.Join(rel, name)
		if te, ok := a.tree.Lookup(dirID, name); ok {
			if te.IsDir() {
				if err := a.addChildren(te.ID, child); err != nil {
					return err
				}
			}
			continue
		}
		if err := a.addEntry(dirID, child, false); err != nil {
			return err
		}
	}
	return nil
}

// newEntry reads the item at rel into a new entry. It reports false for
// unsupported file types.
func (a *adder) newEntry(parentID, rel string) (repo.Entry, bool, error) {
	if err := a.e.fs.ValidateName(path.Base(rel)); err != nil {
		return repo.Entry{}, false, err
	}
	info, err := a.e.fs.Lstat(a.e.abs(rel))
	if err != nil {
		return repo.Entry{}, false, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	kind, ok := kindOf(info.Mode())
	if !ok {
		return repo.Entry{}, false, nil
	}

	e, ok, err := a.e.readEntry(repo.Entry{
		ID:       repo.NewEntryID(),
		ParentID: parentID,
		Name:     path.Base(rel),
		Kind:     kind,
	}, rel)
	if err != nil || !ok {
		return repo.Entry{}, false, err
	}
	return e, true, nil
}

func (a *adder) track(e repo.Entry, rel string) {
	a.ws.Track(e, true)
	a.tree.Put(e)
	a.result.Added = append(a.result.Added, rel)
}
