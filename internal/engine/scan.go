package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/danieljhkim/wcmerge/internal/config"
	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/merge"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// snapshot is the working directory as seen against the tracked state.
type snapshot struct {
	// tree holds tracked entries present on disk with their on-disk values
	tree *repo.Tree

	// missing are tracked entries absent from disk or of another kind
	missing []string

	untracked []merge.Untracked

	local *diskSource
}

// diskSource reads working content by content id from the files it was
// hashed from.
type diskSource struct {
	fs    fsops.FS
	files map[string]string
}

// ReadBlob reads the file a content id was scanned from.
func (d *diskSource) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	p, ok := d.files[id]
	if !ok {
		return nil, fmt.Errorf("working content %s: %w", id, repo.ErrNotFound)
	}
	return d.fs.ReadFile(p)
}

// scan compares the tracked entries of ws with the disk. Untracked items are
// reported at the top of each untracked subtree only.
func (e *Engine) scan(ctx context.Context, ws *state.WorkingState) (*snapshot, error) {
	tracked := ws.Tree()
	snap := &snapshot{
		tree:  repo.NewTree(),
		local: &diskSource{fs: e.fs, files: make(map[string]string)},
	}

	var visit func(parentID, parentRel string) error
	visit = func(parentID, parentRel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		known := make(map[string]bool)
		for _, te := range tracked.Children(parentID) {
			known[te.Name] = true
			rel := path.Join(parentRel, te.Name)

			disk, ok, err := e.readEntry(te, rel)
			if err != nil {
				return err
			}
			if !ok {
				snap.missing = append(snap.missing, descendants(tracked, te.ID)...)
				if exists, _ := e.fs.Exists(e.abs(rel)); exists {
					snap.untracked = append(snap.untracked, merge.Untracked{ParentID: parentID, Name: te.Name, Path: rel})
				}
				continue
			}
			snap.tree.Put(disk)
			if disk.Kind == repo.KindFile {
				snap.local.files[disk.ContentID] = e.abs(rel)
			}
			if disk.IsDir() {
				if err := visit(te.ID, rel); err != nil {
					return err
				}
			}
		}

		names, err := e.fs.ReadDir(e.abs(parentRel))
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", displayPath(parentRel), err)
		}
		for _, name := range names {
			if known[name] || (parentID == repo.RootID && name == config.MetaDirName) {
				continue
			}
			snap.untracked = append(snap.untracked, merge.Untracked{
				ParentID: parentID,
				Name:     name,
				Path:     path.Join(parentRel, name),
			})
		}
		return nil
	}

	if err := visit(repo.RootID, ""); err != nil {
		return nil, err
	}
	return snap, nil
}

// readEntry reads a tracked entry's on-disk value. It reports false when the
// path is gone or holds another kind of entry.
func (e *Engine) readEntry(te repo.Entry, rel string) (repo.Entry, bool, error) {
	abs := e.abs(rel)
	info, err := e.fs.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return repo.Entry{}, false, nil
		}
		return repo.Entry{}, false, fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	kind, ok := kindOf(info.Mode())
	if !ok || kind != te.Kind {
		return repo.Entry{}, false, nil
	}

	out := te.Clone()
	switch kind {
	case repo.KindFile:
		id, err := e.hasher.HashFile(abs)
		if err != nil {
			return repo.Entry{}, false, fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		out.ContentID = id
		out.Exec = fsops.IsExec(info.Mode())
	case repo.KindSymlink:
		target, err := e.fs.Readlink(abs)
		if err != nil {
			return repo.Entry{}, false, fmt.Errorf("failed to read link %s: %w", rel, err)
		}
		out.Target = target
	}

	xattrs, err := e.fs.Xattrs(abs)
	switch {
	case errors.Is(err, fsops.ErrXattrUnsupported):
	case err != nil:
		return repo.Entry{}, false, err
	default:
		out.Xattrs = xattrs
	}
	return out, true, nil
}

// kindOf maps a file mode to an entry kind. Devices, sockets and pipes have
// no kind.
func kindOf(mode os.FileMode) (repo.Kind, bool) {
	switch {
	case mode.IsDir():
		return repo.KindDir, true
	case mode&os.ModeSymlink != 0:
		return repo.KindSymlink, true
	case mode.IsRegular():
		return repo.KindFile, true
	default:
		return "", false
	}
}

// descendants returns id and every tracked entry below it.
func descendants(t *repo.Tree, id string) []string {
	out := []string{id}
	for _, c := range t.Children(id) {
		out = append(out, descendants(t, c.ID)...)
	}
	return out
}

// workingCopy builds the working side of a merge from a snapshot.
func workingCopy(ws *state.WorkingState, snap *snapshot) *merge.WorkingCopy {
	pending := make(map[string]bool)
	for _, id := range ws.PendingAdds() {
		if snap.tree.Has(id) {
			pending[id] = true
		}
	}
	return &merge.WorkingCopy{
		GraphID:   ws.GraphID,
		Parents:   append([]string(nil), ws.Parents...),
		Tree:      snap.tree,
		Pending:   pending,
		Untracked: snap.untracked,
		Local:     snap.local,
	}
}

func displayPath(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
