package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/wcmerge/internal/clock"
	"github.com/danieljhkim/wcmerge/internal/config"
	"github.com/danieljhkim/wcmerge/internal/engine"
	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/hash"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// workingCopy is an initialized working copy backed by the SQLite repository.
type workingCopy struct {
	t     *testing.T
	ctx   context.Context
	root  string
	eng   *engine.Engine
	store *repo.CachedStore
	state *state.FileStateStore
	clk   *clock.FakeClock
}

// setupWorkingCopy creates a working copy in a temp directory.
func setupWorkingCopy(t *testing.T) *workingCopy {
	t.Helper()
	root := t.TempDir()
	paths := config.PathsAt(root)
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	log := zaptest.NewLogger(t)
	sqlStore, err := repo.OpenSQLStore(paths.DB, log)
	if err != nil {
		t.Fatalf("OpenSQLStore failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	store, err := repo.NewCachedStore(sqlStore, 64)
	if err != nil {
		t.Fatalf("NewCachedStore failed: %v", err)
	}

	fs := fsops.NewRealFS()
	stateStore := state.NewFileStateStore(fs, paths.State)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	eng := engine.New(store, stateStore, state.NewLock(fs, paths.Lock), fs, hash.NewSHA256Hasher(),
		clk, *paths, config.Default, log)

	wc := &workingCopy{t: t, ctx: context.Background(), root: root, eng: eng, store: store, state: stateStore, clk: clk}
	if _, err := eng.Init(wc.ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return wc
}

func (wc *workingCopy) write(rel, content string) {
	wc.t.Helper()
	p := filepath.Join(wc.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		wc.t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		wc.t.Fatalf("write failed: %v", err)
	}
}

func (wc *workingCopy) read(rel string) string {
	wc.t.Helper()
	data, err := os.ReadFile(filepath.Join(wc.root, filepath.FromSlash(rel)))
	if err != nil {
		wc.t.Fatalf("read %s failed: %v", rel, err)
	}
	return string(data)
}

func (wc *workingCopy) exists(rel string) bool {
	_, err := os.Lstat(filepath.Join(wc.root, filepath.FromSlash(rel)))
	return err == nil
}

// commitAll adds everything on disk and commits it.
func (wc *workingCopy) commitAll(msg string) string {
	wc.t.Helper()
	if _, err := wc.eng.Add(wc.ctx, &engine.AddRequest{CWD: wc.root, Paths: []string{"."}}); err != nil {
		wc.t.Fatalf("Add failed: %v", err)
	}
	wc.clk.Advance(time.Minute)
	res, err := wc.eng.Commit(wc.ctx, &engine.CommitRequest{Message: msg})
	if err != nil {
		wc.t.Fatalf("Commit failed: %v", err)
	}
	return res.Version
}

// ids maps tracked paths to entry ids.
func (wc *workingCopy) ids() map[string]string {
	wc.t.Helper()
	ws, err := wc.state.Load()
	if err != nil {
		wc.t.Fatalf("Load failed: %v", err)
	}
	out := make(map[string]string)
	for id := range ws.Entries {
		if p, err := ws.PathOf(id); err == nil {
			out[p] = id
		}
	}
	return out
}

// derive records a version on top of parent as another user would: the
// parent's tree changed by mutate.
func (wc *workingCopy) derive(parent, msg string, mutate func(t *repo.Tree)) string {
	wc.t.Helper()
	tree, err := wc.store.FetchTree(wc.ctx, parent)
	if err != nil {
		wc.t.Fatalf("FetchTree failed: %v", err)
	}
	mutate(tree)

	ws, err := wc.state.Load()
	if err != nil {
		wc.t.Fatalf("Load failed: %v", err)
	}
	wc.clk.Advance(time.Minute)
	n, err := repo.Commit(wc.ctx, wc.store, repo.CommitRequest{
		GraphID: ws.GraphID,
		Parents: []string{parent},
		Tree:    tree,
		Message: msg,
		Time:    wc.clk.Now(),
	})
	if err != nil {
		wc.t.Fatalf("Commit failed: %v", err)
	}
	return n.ID()
}

// rename returns a mutation moving an entry to a new parent and name.
func rename(id, parentID, name string) func(t *repo.Tree) {
	return func(t *repo.Tree) {
		e, _ := t.Get(id)
		e.ParentID, e.Name = parentID, name
		t.Put(e)
	}
}

func all(muts ...func(t *repo.Tree)) func(t *repo.Tree) {
	return func(t *repo.Tree) {
		for _, m := range muts {
			m(t)
		}
	}
}

// parkingLotEmpty reports whether no session parking lot is left behind.
func (wc *workingCopy) parkingLotEmpty() bool {
	names, err := os.ReadDir(filepath.Join(wc.root, config.MetaDirName, "parking"))
	return err == nil && len(names) == 0
}

// setContent returns a mutation giving a file entry new content.
func (wc *workingCopy) setContent(id, content string) func(t *repo.Tree) {
	wc.t.Helper()
	cid, err := wc.store.PutBlob(wc.ctx, []byte(content))
	if err != nil {
		wc.t.Fatalf("PutBlob failed: %v", err)
	}
	return func(t *repo.Tree) {
		e, _ := t.Get(id)
		e.ContentID = cid
		t.Put(e)
	}
}
