package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// failingFS fails every rename whose destination has the given base name.
type failingFS struct {
	fsops.FS
	failOn string
}

func (f *failingFS) Rename(oldpath, newpath string) error {
	if filepath.Base(newpath) == f.failOn {
		return errors.New("injected rename failure")
	}
	return f.FS.Rename(oldpath, newpath)
}

func newExecutorFixture(t *testing.T, fs fsops.FS) (*Executor, *state.WorkingState, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	ws := state.NewWorkingState("g")
	ws.Track(repo.Entry{ID: "ida", ParentID: repo.RootID, Name: "a", Kind: repo.KindFile}, false)
	ws.Track(repo.Entry{ID: "idb", ParentID: repo.RootID, Name: "b", Kind: repo.KindFile}, false)
	return NewExecutor(fs, repo.NewMemStore(), root, ws, zaptest.NewLogger(t)), ws, root
}

func swapPlan() *planner.Plan {
	p := planner.NewPlan("s1", ".wcmerge/parking/s1")
	p.Add(planner.Move{ID: "ida", From: "a", To: ".wcmerge/parking/s1/ida", Parking: planner.ParkSwap})
	p.Add(planner.Move{ID: "idb", From: "b", To: "a", ParentID: repo.RootID, Name: "a"})
	p.Add(planner.Move{ID: "ida", From: ".wcmerge/parking/s1/ida", To: "b", ParentID: repo.RootID, Name: "b",
		Parking: planner.Unpark})
	return p
}

func TestExecutor_Swap(t *testing.T) {
	x, ws, root := newExecutorFixture(t, fsops.NewRealFS())

	if err := x.Execute(context.Background(), swapPlan()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if x.Applied != 3 {
		t.Errorf("expected 3 applied steps, got %d", x.Applied)
	}

	data, err := os.ReadFile(filepath.Join(root, "a"))
	if err != nil || string(data) != "b" {
		t.Errorf("a holds %q (%v), want %q", data, err, "b")
	}
	if ws.Entries["ida"].Name != "b" || ws.Entries["idb"].Name != "a" {
		t.Errorf("locations not recorded: %+v", ws.Entries)
	}
	if _, err := os.Lstat(filepath.Join(root, ".wcmerge", "parking", "s1")); !os.IsNotExist(err) {
		t.Errorf("expected parking lot to be removed, got %v", err)
	}
}

func TestExecutor_StopsAtFailingStep(t *testing.T) {
	x, ws, root := newExecutorFixture(t, &failingFS{FS: fsops.NewRealFS(), failOn: "a"})

	err := x.Execute(context.Background(), swapPlan())
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Index != 1 {
		t.Errorf("expected failure at step 1, got %d", stepErr.Index)
	}
	if x.Applied != 1 {
		t.Errorf("expected 1 applied step, got %d", x.Applied)
	}

	// Nothing rolled back: the parked entry stays in the parking lot.
	if _, err := os.Lstat(filepath.Join(root, ".wcmerge", "parking", "s1", "ida")); err != nil {
		t.Errorf("expected parked entry to remain: %v", err)
	}
	if ws.Entries["idb"].Name != "b" {
		t.Errorf("failed move must not be recorded, got %+v", ws.Entries["idb"])
	}
}

func TestExecutor_ParkingLotNotEmpty(t *testing.T) {
	x, _, _ := newExecutorFixture(t, fsops.NewRealFS())

	p := planner.NewPlan("s2", ".wcmerge/parking/s2")
	p.Add(planner.Move{ID: "ida", From: "a", To: ".wcmerge/parking/s2/ida", Parking: planner.ParkCycle})

	err := x.Execute(context.Background(), p)
	if !errors.Is(err, inventory.ErrParkingLotNotEmpty) {
		t.Fatalf("expected ErrParkingLotNotEmpty, got %v", err)
	}
	var fault *inventory.FaultError
	if !errors.As(err, &fault) || fault.Entry != "ida" {
		t.Errorf("expected fault naming ida, got %v", err)
	}
}

func TestExecutor_GetAlterRemove(t *testing.T) {
	x, ws, root := newExecutorFixture(t, fsops.NewRealFS())
	ctx := context.Background()

	cid, err := x.store.PutBlob(ctx, []byte("#!/bin/sh\n"))
	if err != nil {
		t.Fatal(err)
	}
	dir := repo.Entry{ID: "idd", ParentID: repo.RootID, Name: "bin", Kind: repo.KindDir}
	script := repo.Entry{ID: "ids", ParentID: "idd", Name: "run.sh", Kind: repo.KindFile, ContentID: cid, Exec: true}
	link := repo.Entry{ID: "idl", ParentID: repo.RootID, Name: "run", Kind: repo.KindSymlink, Target: "bin/run.sh"}
	altered := repo.Entry{ID: "ida", ParentID: repo.RootID, Name: "a", Kind: repo.KindFile, ContentID: cid}

	p := planner.NewPlan("s3", ".wcmerge/parking/s3")
	p.Add(planner.Remove{ID: "idb", Path: "b", EntryKind: repo.KindFile})
	p.Add(planner.GetFromRepo{Entry: dir, Path: "bin"})
	p.Add(planner.GetFromRepo{Entry: script, Path: "bin/run.sh"})
	p.Add(planner.GetFromRepo{Entry: link, Path: "run"})
	p.Add(planner.Alter{Entry: altered, Path: "a", Content: true})

	if err := x.Execute(ctx, p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "bin", "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if !fsops.IsExec(info.Mode()) {
		t.Errorf("expected run.sh to be executable, mode %v", info.Mode())
	}
	if target, err := os.Readlink(filepath.Join(root, "run")); err != nil || target != "bin/run.sh" {
		t.Errorf("unexpected link target %q (%v)", target, err)
	}
	if data, _ := os.ReadFile(filepath.Join(root, "a")); string(data) != "#!/bin/sh\n" {
		t.Errorf("a not rewritten, holds %q", data)
	}
	if _, err := os.Lstat(filepath.Join(root, "b")); !os.IsNotExist(err) {
		t.Errorf("expected b removed, got %v", err)
	}

	if _, ok := ws.Entries["idb"]; ok {
		t.Error("removed entry still tracked")
	}
	for _, id := range []string{"idd", "ids", "idl"} {
		if te, ok := ws.Entries[id]; !ok || te.PendingAdd {
			t.Errorf("entry %s not tracked as committed: %+v", id, te)
		}
	}
	if ws.Entries["ida"].ContentID != cid {
		t.Errorf("altered entry not recorded")
	}
}

func TestExecutor_AddNewAndUnadd(t *testing.T) {
	x, ws, _ := newExecutorFixture(t, fsops.NewRealFS())

	p := planner.NewPlan("s4", ".wcmerge/parking/s4")
	p.Add(planner.AddNew{Entry: repo.Entry{ID: "idn", ParentID: repo.RootID, Name: "new", Kind: repo.KindFile}, Path: "new"})
	p.Add(planner.Unadd{ID: "idb", Path: "b"})

	if err := x.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !ws.Entries["idn"].PendingAdd {
		t.Error("expected idn pending")
	}
	if _, ok := ws.Entries["idb"]; ok {
		t.Error("expected idb untracked")
	}
}
