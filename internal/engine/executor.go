package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// Executor applies plan steps to the working directory and records their
// effect in the working state it holds. It stops at the first failing step
// and never rolls back.
type Executor struct {
	fs    fsops.FS
	store repo.Store
	root  string
	ws    *state.WorkingState
	log   *zap.Logger

	// Applied counts the steps executed by the last Execute
	Applied int
}

// NewExecutor creates an executor for the working directory at root.
func NewExecutor(fs fsops.FS, store repo.Store, root string, ws *state.WorkingState, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{fs: fs, store: store, root: root, ws: ws, log: log}
}

// Execute runs every step in order. After the last step the parking lot must
// be empty; it is then removed. On failure the parking lot is left as is.
func (x *Executor) Execute(ctx context.Context, plan *planner.Plan) error {
	x.Applied = 0
	lot := x.abs(plan.ParkingLot)

	for i, s := range plan.Steps {
		if err := x.step(ctx, lot, s); err != nil {
			x.log.Error("step failed",
				zap.Int("step", i),
				zap.String("kind", string(s.Kind())),
				zap.String("entry", s.Identity()),
				zap.Error(err))
			return &StepError{Index: i, Step: s, Err: err}
		}
		x.Applied++
		x.log.Debug("step applied", zap.Int("step", i), zap.String("step_desc", s.Describe()))
	}

	return x.clearParkingLot(plan.ParkingLot, lot)
}

func (x *Executor) step(ctx context.Context, lot string, s planner.Step) error {
	switch s := s.(type) {
	case planner.Move:
		return x.move(lot, s)
	case planner.Remove:
		return x.remove(s)
	case planner.AddNew:
		x.ws.Track(s.Entry, true)
		return nil
	case planner.Unadd:
		x.ws.Untrack(s.ID)
		return nil
	case planner.GetFromRepo:
		return x.get(ctx, s)
	case planner.Alter:
		return x.alter(ctx, s)
	default:
		return fmt.Errorf("unknown step type %T", s)
	}
}

func (x *Executor) move(lot string, s planner.Move) error {
	if s.Parking.Parks() {
		if err := x.fs.MkdirAll(lot, 0755); err != nil {
			return fmt.Errorf("failed to create parking lot: %w", err)
		}
	}
	if err := x.fs.Rename(x.abs(s.From), x.abs(s.To)); err != nil {
		return err
	}
	if s.Parking.Parks() {
		return nil
	}

	te, ok := x.ws.Entries[s.ID]
	if !ok {
		return fmt.Errorf("moved entry %s is not tracked", s.ID)
	}
	te.ParentID, te.Name = s.ParentID, s.Name
	x.ws.Entries[s.ID] = te
	return nil
}

func (x *Executor) remove(s planner.Remove) error {
	exists, err := x.fs.Exists(x.abs(s.Path))
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", s.Path, err)
	}
	if exists {
		if err := x.fs.Remove(x.abs(s.Path)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", s.Path, err)
		}
	}
	x.ws.Untrack(s.ID)
	return nil
}

func (x *Executor) get(ctx context.Context, s planner.GetFromRepo) error {
	e := s.Entry
	p := x.abs(s.Path)
	switch e.Kind {
	case repo.KindDir:
		if err := x.fs.Mkdir(p, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	case repo.KindFile:
		if err := x.writeFile(ctx, p, e); err != nil {
			return err
		}
	case repo.KindSymlink:
		if err := x.fs.Symlink(e.Target, p); err != nil {
			return fmt.Errorf("failed to create symlink: %w", err)
		}
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}

	if err := x.syncXattrs(p, e); err != nil {
		return err
	}
	x.ws.Track(e, false)
	return nil
}

func (x *Executor) alter(ctx context.Context, s planner.Alter) error {
	e := s.Entry
	p := x.abs(s.Path)

	switch {
	case s.Content && e.Kind == repo.KindFile:
		if err := x.writeFile(ctx, p, e); err != nil {
			return err
		}
	case s.Content && e.Kind == repo.KindSymlink:
		if err := x.fs.Remove(p); err != nil {
			return fmt.Errorf("failed to remove old symlink: %w", err)
		}
		if err := x.fs.Symlink(e.Target, p); err != nil {
			return fmt.Errorf("failed to create symlink: %w", err)
		}
	case s.Attrs && e.Kind == repo.KindFile:
		if err := x.fs.Chmod(p, fsops.ModeFor(e.Exec)); err != nil {
			return fmt.Errorf("failed to set mode: %w", err)
		}
	}

	if s.Attrs {
		if err := x.syncXattrs(p, e); err != nil {
			return err
		}
	}
	x.ws.Track(e, x.ws.Entries[e.ID].PendingAdd)
	return nil
}

// writeFile replaces the file at p with the entry's stored content.
func (x *Executor) writeFile(ctx context.Context, p string, e repo.Entry) error {
	data, err := x.store.ReadBlob(ctx, e.ContentID)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if err := x.fs.AtomicWrite(p, data, fsops.ModeFor(e.Exec)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// syncXattrs makes the extended attributes of p equal to the entry's.
// Symlinks and platforms without xattr support are left alone.
func (x *Executor) syncXattrs(p string, e repo.Entry) error {
	if e.Kind == repo.KindSymlink {
		return nil
	}
	have, err := x.fs.Xattrs(p)
	if errors.Is(err, fsops.ErrXattrUnsupported) {
		if len(e.Xattrs) > 0 {
			x.log.Warn("extended attributes not applied", zap.String("entry", e.ID))
		}
		return nil
	}
	if err != nil {
		return err
	}

	for name := range have {
		if _, ok := e.Xattrs[name]; !ok {
			if err := x.fs.RemoveXattr(p, name); err != nil {
				return err
			}
		}
	}
	for name, value := range e.Xattrs {
		if cur, ok := have[name]; ok && cur == value {
			continue
		}
		if err := x.fs.SetXattr(p, name, value); err != nil {
			if errors.Is(err, fsops.ErrXattrUnsupported) {
				x.log.Warn("extended attributes not applied", zap.String("entry", e.ID))
				return nil
			}
			return err
		}
	}
	return nil
}

// clearParkingLot checks that nothing is left parked and removes the lot.
func (x *Executor) clearParkingLot(rel, lot string) error {
	exists, err := x.fs.Exists(lot)
	if err != nil || !exists {
		return err
	}
	names, err := x.fs.ReadDir(lot)
	if err != nil {
		return fmt.Errorf("failed to list parking lot: %w", err)
	}
	if len(names) > 0 {
		x.log.Error("parking lot not empty after execution", zap.String("lot", rel), zap.Strings("left", names))
		return &inventory.FaultError{Entry: names[0], Directory: rel, Err: inventory.ErrParkingLotNotEmpty}
	}
	if err := x.fs.Remove(lot); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove parking lot: %w", err)
	}
	return nil
}

func (x *Executor) abs(rel string) string {
	return filepath.Join(x.root, filepath.FromSlash(rel))
}
