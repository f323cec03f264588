package merge_test

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/merge"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/repo/repotest"
)

const lot = ".wcmerge/parking/s1"

var root = repo.RootID

type fixture struct {
	t *testing.T
	b *repotest.Builder
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, b: repotest.New(t)}
}

func (f *fixture) session(wc *merge.WorkingCopy, opts ...func(*merge.Options)) *merge.Session {
	o := merge.Options{
		Session:    "s1",
		ParkingLot: lot,
		Store:      f.b.Store,
		Log:        zaptest.NewLogger(f.t),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return merge.NewSession(o, wc)
}

// working returns a working copy sitting on parent with the given tree.
func working(parent string, tree *repo.Tree) *merge.WorkingCopy {
	return &merge.WorkingCopy{
		GraphID: repotest.GraphID,
		Parents: []string{parent},
		Tree:    tree,
	}
}

// replay applies plan steps to a path layout starting from the working tree.
// It fails the test when a step would clobber a live entry or act on a
// missing one, and returns the final layout (path to entry id).
func replay(t *testing.T, start *repo.Tree, plan *planner.Plan) map[string]string {
	t.Helper()
	layout := make(map[string]string)
	for _, id := range start.IDs() {
		if id == repo.RootID {
			continue
		}
		p, err := start.Path(id)
		require.NoError(t, err)
		layout[p] = id
	}

	parentOK := func(p string) bool {
		dir := path.Dir(p)
		return dir == "." || strings.HasPrefix(p, plan.ParkingLot+"/") || layout[dir] != ""
	}
	hasChildren := func(p string) bool {
		for k := range layout {
			if strings.HasPrefix(k, p+"/") {
				return true
			}
		}
		return false
	}

	for i, s := range plan.Steps {
		switch s := s.(type) {
		case planner.Move:
			require.NotEmpty(t, layout[s.From], "step %d: %s: source missing", i, s.Describe())
			require.Empty(t, layout[s.To], "step %d: %s: destination taken", i, s.Describe())
			require.True(t, parentOK(s.To), "step %d: %s: no parent", i, s.Describe())
			moved := make(map[string]string)
			for k, id := range layout {
				if k == s.From || strings.HasPrefix(k, s.From+"/") {
					moved[s.To+strings.TrimPrefix(k, s.From)] = id
					delete(layout, k)
				}
			}
			for k, id := range moved {
				layout[k] = id
			}
		case planner.Remove:
			require.NotEmpty(t, layout[s.Path], "step %d: %s: missing", i, s.Describe())
			require.False(t, hasChildren(s.Path), "step %d: %s: directory not empty", i, s.Describe())
			delete(layout, s.Path)
		case planner.GetFromRepo:
			require.True(t, parentOK(s.Path), "step %d: %s: no parent", i, s.Describe())
			if s.Entry.IsDir() {
				require.Empty(t, layout[s.Path], "step %d: %s: taken", i, s.Describe())
			}
			layout[s.Path] = s.Entry.ID
		case planner.Alter:
			require.Equal(t, s.Entry.ID, layout[s.Path], "step %d: %s", i, s.Describe())
		case planner.AddNew:
			require.Equal(t, s.Entry.ID, layout[s.Path], "step %d: %s", i, s.Describe())
		case planner.Unadd:
			require.NotEmpty(t, layout[s.Path], "step %d: %s", i, s.Describe())
		}
	}

	for k := range layout {
		assert.False(t, strings.HasPrefix(k, plan.ParkingLot), "left in parking lot: %s", k)
	}
	return layout
}

func expectedLayout(t *testing.T, tree *repo.Tree) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, id := range tree.IDs() {
		if id == repo.RootID {
			continue
		}
		p, err := tree.Path(id)
		require.NoError(t, err)
		out[p] = id
	}
	return out
}

func issueKinds(p *planner.Plan) []planner.IssueKind {
	var out []planner.IssueKind
	for _, is := range p.Issues {
		out = append(out, is.Kind)
	}
	return out
}

func countParking(p *planner.Plan, parking planner.Parking) int {
	n := 0
	for _, s := range p.StepsOf(planner.KindMove) {
		if s.(planner.Move).Parking == parking {
			n++
		}
	}
	return n
}

func TestCompute_Swap(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "A\n")
	fb := f.b.File("f2", root, "b", "B\n")
	base := f.b.Commit(repotest.Tree(fa, fb))

	fa2, fb2 := fa, fb
	fa2.Name, fb2.Name = "b", "a"
	member := f.b.Commit(repotest.Tree(fa2, fb2), base)

	wc := working(base, repotest.Tree(fa, fb))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Empty(t, plan.Issues)
	assert.Equal(t, 2, countParking(plan, planner.ParkSwap))
	assert.Equal(t, 2, countParking(plan, planner.Unpark))
	assert.Equal(t, 2, plan.Stats.Parked)
	assert.Equal(t, 2, plan.Stats.FilesChanged)
	assert.Equal(t, []string{member}, plan.Parents)

	assert.Equal(t, expectedLayout(t, s.Result()), replay(t, wc.Tree, plan))
	assert.Equal(t, map[string]string{"a": "f2", "b": "f1"}, replay(t, wc.Tree, plan))

	for _, e := range s.Inventory().Parked() {
		assert.Equal(t, inventory.ParkedForSwap, e.Reason)
	}
}

func TestCompute_ThreeCycle(t *testing.T) {
	f := newFixture(t)
	e1 := f.b.File("f1", root, "a", "1\n")
	e2 := f.b.File("f2", root, "b", "2\n")
	e3 := f.b.File("f3", root, "c", "3\n")
	base := f.b.Commit(repotest.Tree(e1, e2, e3))

	m1, m2, m3 := e1, e2, e3
	m1.Name, m2.Name, m3.Name = "b", "c", "a"
	member := f.b.Commit(repotest.Tree(m1, m2, m3), base)

	wc := working(base, repotest.Tree(e1, e2, e3))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Equal(t, 3, countParking(plan, planner.ParkCycle))
	assert.Equal(t, map[string]string{"a": "f3", "b": "f1", "c": "f2"}, replay(t, wc.Tree, plan))
}

func TestCompute_ChainNeedsNoParking(t *testing.T) {
	f := newFixture(t)
	e1 := f.b.File("f1", root, "a", "1\n")
	e2 := f.b.File("f2", root, "b", "2\n")
	base := f.b.Commit(repotest.Tree(e1, e2))

	// a -> b while b -> c
	m1, m2 := e1, e2
	m1.Name, m2.Name = "b", "c"
	member := f.b.Commit(repotest.Tree(m1, m2), base)

	wc := working(base, repotest.Tree(e1, e2))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Zero(t, plan.Stats.Parked)
	assert.Equal(t, map[string]string{"b": "f1", "c": "f2"}, replay(t, wc.Tree, plan))
}

func TestCompute_ParentChildSwapParksForOrder(t *testing.T) {
	f := newFixture(t)
	da := repotest.Dir("da", root, "x")
	db := repotest.Dir("db", "da", "y")
	base := f.b.Commit(repotest.Tree(da, db))

	// db becomes x at the root and da moves inside it as y
	ma, mb := da, db
	ma.ParentID, ma.Name = "db", "y"
	mb.ParentID, mb.Name = root, "x"
	member := f.b.Commit(repotest.Tree(ma, mb), base)

	wc := working(base, repotest.Tree(da, db))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Equal(t, 1, countParking(plan, planner.ParkOrder))
	assert.Equal(t, map[string]string{"x": "db", "x/y": "da"}, replay(t, wc.Tree, plan))

	e, ok := s.Inventory().Get("da")
	require.True(t, ok)
	assert.Equal(t, inventory.ParkedForOrder, e.Reason)
}

func TestCompute_DivergentRename(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "A\n")
	base := f.b.Commit(repotest.Tree(fa))

	theirs := fa
	theirs.Name = "y"
	member := f.b.Commit(repotest.Tree(theirs), base)

	ours := fa
	ours.Name = "x"
	wc := working(base, repotest.Tree(ours))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Equal(t, []planner.IssueKind{planner.IssueDivergentMove}, issueKinds(plan))
	is := plan.Issues[0]
	assert.Equal(t, "working", is.Chosen)
	assert.Len(t, is.Candidates, 2)
	assert.Empty(t, plan.StepsOf(planner.KindMove))

	got, _ := s.Result().Get("f1")
	assert.Equal(t, "x", got.Name)
}

func TestCompute_ContentConflict(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "1\n2\n3\n")
	base := f.b.Commit(repotest.Tree(fa))
	member := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "1\nM\n3\n")), base)

	wc := working(base, repotest.Tree(f.b.File("f1", root, "a", "1\nW\n3\n")))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Equal(t, []planner.IssueKind{planner.IssueDivergentContent}, issueKinds(plan))
	alters := plan.StepsOf(planner.KindAlter)
	require.Len(t, alters, 1)
	alter := alters[0].(planner.Alter)
	assert.True(t, alter.Conflicted)
	assert.Zero(t, plan.Stats.FilesMerged)

	data, err := f.b.Store.ReadBlob(context.Background(), alter.Entry.ContentID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<<<<<<< working")
	assert.Contains(t, string(data), "W\n")
	assert.Contains(t, string(data), "M\n")
}

func TestCompute_CleanContentMerge(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "a\nb\nc\nd\ne\n")))
	member := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "a\nb\nc\nd\nE\n")), base)

	wc := working(base, repotest.Tree(f.b.File("f1", root, "a", "A\nb\nc\nd\ne\n")))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Empty(t, plan.Issues)
	assert.Equal(t, 1, plan.Stats.FilesMerged)

	got, _ := s.Result().Get("f1")
	data, err := f.b.Store.ReadBlob(context.Background(), got.ContentID)
	require.NoError(t, err)
	assert.Equal(t, "A\nb\nc\nd\nE\n", string(data))
}

func TestCompute_DeleteModify(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "old\n")))
	member := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "new\n")), base)

	wc := working(base, repo.NewTree())
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Equal(t, []planner.IssueKind{planner.IssueDeleteModify}, issueKinds(plan))
	gets := plan.StepsOf(planner.KindGetFromRepo)
	require.Len(t, gets, 1)
	assert.Equal(t, "a", gets[0].(planner.GetFromRepo).Path)
}

func TestCompute_DeletedOnBothSides(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "x\n")
	base := f.b.Commit(repotest.Tree(fa))
	member := f.b.Commit(repo.NewTree(), base)

	wc := working(base, repotest.Tree(fa))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Empty(t, plan.Issues)
	assert.Equal(t, 1, plan.Stats.FilesDeleted)
	assert.Empty(t, replay(t, wc.Tree, plan))
}

func TestCompute_MoveCycleReverted(t *testing.T) {
	f := newFixture(t)
	d1 := repotest.Dir("d1", root, "a")
	d2 := repotest.Dir("d2", root, "b")
	base := f.b.Commit(repotest.Tree(d1, d2))

	m2 := d2
	m2.ParentID = "d1"
	member := f.b.Commit(repotest.Tree(d1, m2), base)

	w1 := d1
	w1.ParentID = "d2"
	wc := working(base, repotest.Tree(w1, d2))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Equal(t, []planner.IssueKind{planner.IssueMoveCycle, planner.IssueMoveCycle}, issueKinds(plan))
	assert.Equal(t, map[string]string{"a": "d1", "b": "d2"}, replay(t, wc.Tree, plan))
}

func TestCompute_OrphanReinstated(t *testing.T) {
	f := newFixture(t)
	d := repotest.Dir("d", root, "d")
	base := f.b.Commit(repotest.Tree(d, f.b.File("f", "d", "old", "x\n")))
	member := f.b.Commit(repotest.Tree(d, f.b.File("f", "d", "old", "x\n"), f.b.File("g", "d", "new", "y\n")), base)

	wc := working(base, repo.NewTree())
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Equal(t, []planner.IssueKind{planner.IssueOrphan}, issueKinds(plan))
	assert.Equal(t, map[string]string{"d": "d", "d/new": "g"}, replay(t, wc.Tree, plan))
}

func TestCompute_CollisionRenamesIncoming(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	member := f.b.Commit(repotest.Tree(f.b.File("m1-entry", root, "n", "theirs\n")), base)

	wc := working(base, repotest.Tree(f.b.File("p1", root, "n", "ours\n")))
	wc.Pending = map[string]bool{"p1": true}
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Equal(t, []planner.IssueKind{planner.IssueCollision}, issueKinds(plan))
	assert.Equal(t, "n~m1-ent", plan.Issues[0].Chosen)
	assert.Equal(t, map[string]string{"n": "p1", "n~m1-ent": "m1-entry"}, replay(t, wc.Tree, plan))
	require.Len(t, plan.StepsOf(planner.KindAddNew), 1)
}

func TestCompute_IdenticalAddsCollapse(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	member := f.b.Commit(repotest.Tree(f.b.File("m1", root, "n", "same\n")), base)

	wc := working(base, repotest.Tree(f.b.File("p1", root, "n", "same\n")))
	wc.Pending = map[string]bool{"p1": true}
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Empty(t, plan.Issues)
	require.Len(t, plan.StepsOf(planner.KindUnadd), 1)
	assert.Equal(t, "p1", plan.StepsOf(planner.KindUnadd)[0].Identity())
	assert.False(t, s.Result().Has("p1"))
	assert.Equal(t, map[string]string{"n": "m1"}, replay(t, wc.Tree, plan))
}

func TestCompute_KindChange(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "x\n")
	base := f.b.Commit(repotest.Tree(fa))
	member := f.b.Commit(repotest.Tree(repotest.Dir("f1", root, "a")), base)

	wc := working(base, repotest.Tree(fa))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, planner.KindRemove, plan.Steps[0].Kind())
	assert.Equal(t, planner.KindGetFromRepo, plan.Steps[1].Kind())
	assert.Equal(t, map[string]string{"a": "f1"}, replay(t, wc.Tree, plan))
}

func TestCompute_KindChangeAgainstLocalEdit(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "x\n")
	base := f.b.Commit(repotest.Tree(fa))
	member := f.b.Commit(repotest.Tree(repotest.Dir("f1", root, "a")), base)

	local := f.b.File("f1", root, "a", "local uncommitted work\n")
	wc := working(base, repotest.Tree(local))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	assert.Equal(t, []planner.IssueKind{planner.IssueDivergentKind}, issueKinds(plan))
	assert.Empty(t, plan.StepsOf(planner.KindRemove), "local edit must stay on disk")

	e, ok := s.Result().Get("f1")
	require.True(t, ok)
	assert.Equal(t, repo.KindFile, e.Kind)
	assert.Equal(t, local.ContentID, e.ContentID)
	assert.Equal(t, map[string]string{"a": "f1"}, replay(t, wc.Tree, plan))
}

func TestCompute_LocalKindChangeAgainstMemberEdit(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "x\n")
	base := f.b.Commit(repotest.Tree(fa))
	member := f.b.Commit(repotest.Tree(f.b.File("f1", root, "a", "edited\n")), base)

	wc := working(base, repotest.Tree(repotest.Dir("f1", root, "a")))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)

	require.Equal(t, []planner.IssueKind{planner.IssueDivergentKind}, issueKinds(plan))
	assert.Len(t, plan.Issues[0].Candidates, 2)
	e, ok := s.Result().Get("f1")
	require.True(t, ok)
	assert.Equal(t, repo.KindDir, e.Kind)
	assert.Empty(t, plan.Steps)
}

func TestCompute_Obstructed(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	member := f.b.Commit(repotest.Tree(f.b.File("m1", root, "n", "x\n")), base)

	wc := working(base, repo.NewTree())
	wc.Untracked = []merge.Untracked{{ParentID: root, Name: "n", Path: "n"}}
	s := f.session(wc)
	_, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.ErrorIs(t, err, merge.ErrObstructed)
	assert.Contains(t, err.Error(), "n: would be overwritten")
}

func TestCompute_Portability(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	member := f.b.Commit(repotest.Tree(f.b.File("m1", root, "CON", "x\n")), base)
	policy, err := inventory.NewPortabilityPolicy(nil)
	require.NoError(t, err)

	s := f.session(working(base, repo.NewTree()), func(o *merge.Options) { o.Policy = policy })
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CON: reserved device name"}, plan.Warnings)

	strict := f.session(working(base, repo.NewTree()), func(o *merge.Options) {
		o.Policy = policy
		o.StrictPortability = true
	})
	_, err = strict.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.ErrorIs(t, err, merge.ErrNotPortable)
}

func TestCompute_PortabilityCaseCollisionWithExistingName(t *testing.T) {
	f := newFixture(t)
	existing := f.b.File("f1", root, "readme", "old\n")
	base := f.b.Commit(repotest.Tree(existing))
	member := f.b.Commit(repotest.Tree(existing, f.b.File("m1", root, "README", "new\n")), base)
	policy, err := inventory.NewPortabilityPolicy(nil)
	require.NoError(t, err)

	s := f.session(working(base, repotest.Tree(existing)), func(o *merge.Options) { o.Policy = policy })
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)
	assert.Equal(t, []string{`readme: differs only in case from "README"`}, plan.Warnings)

	strict := f.session(working(base, repotest.Tree(existing)), func(o *merge.Options) {
		o.Policy = policy
		o.StrictPortability = true
	})
	_, err = strict.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.ErrorIs(t, err, merge.ErrNotPortable)
}

func TestCompute_Validation(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	mid := f.b.Node(base)
	tip := f.b.Node(mid)
	ctx := context.Background()

	t.Run("empty merge set", func(t *testing.T) {
		_, err := f.session(working(base, repo.NewTree())).Compute(ctx, merge.Request{})
		require.ErrorIs(t, err, merge.ErrEmptyMergeSet)
	})

	t.Run("non-leaf member", func(t *testing.T) {
		_, err := f.session(working(base, repo.NewTree())).Compute(ctx, merge.Request{MergeSet: []string{mid}})
		require.ErrorIs(t, err, merge.ErrNotLeaf)

		plan, err := f.session(working(base, repo.NewTree())).Compute(ctx,
			merge.Request{MergeSet: []string{mid}, AllowNonLeaf: true})
		require.NoError(t, err)
		assert.Equal(t, []string{mid}, plan.Parents)
	})

	t.Run("pending merge", func(t *testing.T) {
		wc := working(base, repo.NewTree())
		wc.Parents = []string{base, mid}
		_, err := f.session(wc).Compute(ctx, merge.Request{MergeSet: []string{tip}})
		require.ErrorIs(t, err, merge.ErrMergePending)
	})

	t.Run("foreign version", func(t *testing.T) {
		other := repo.NewNode("other-graph")
		require.NoError(t, other.SetGeneration(1))
		require.NoError(t, other.Freeze())
		require.NoError(t, f.b.Store.PutNode(ctx, other))

		_, err := f.session(working(base, repo.NewTree())).Compute(ctx, merge.Request{MergeSet: []string{other.ID()}})
		require.ErrorIs(t, err, merge.ErrForeignVersion)
	})

	t.Run("already merged", func(t *testing.T) {
		plan, err := f.session(working(tip, repo.NewTree())).Compute(ctx,
			merge.Request{MergeSet: []string{mid}, AllowNonLeaf: true})
		require.NoError(t, err)
		assert.True(t, plan.Empty())
		assert.Len(t, plan.Warnings, 1)
		assert.Equal(t, []string{tip}, plan.Parents)
	})
}

func TestCompute_Idempotent(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "A\n")
	base := f.b.Commit(repotest.Tree(fa))
	moved := fa
	moved.Name = "b"
	member := f.b.Commit(repotest.Tree(moved), base)

	// The working copy already made the same change.
	s := f.session(working(base, repotest.Tree(moved)))
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{member}})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Issues)
	assert.Equal(t, []string{member}, plan.Parents)
}

func TestCompute_ExplicitBaseline(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "A\n")
	old := f.b.Commit(repo.NewTree())
	base := f.b.Commit(repotest.Tree(fa), old)
	member := f.b.Commit(repotest.Tree(fa), base)

	// Against the empty baseline both sides added f1 identically.
	s := f.session(working(base, repotest.Tree(fa)))
	plan, err := s.Compute(context.Background(), merge.Request{Baseline: old, MergeSet: []string{member}})
	require.NoError(t, err)
	assert.Equal(t, old, plan.Baseline)
	assert.True(t, plan.Empty())
}

func TestCompute_ThreeWayMergeSet(t *testing.T) {
	f := newFixture(t)
	fa := f.b.File("f1", root, "a", "A\n")
	base := f.b.Commit(repotest.Tree(fa))

	ren := fa
	ren.Name = "renamed"
	m1 := f.b.Commit(repotest.Tree(ren), base)
	m2 := f.b.Commit(repotest.Tree(fa, f.b.File("f2", root, "new", "N\n")), base)

	wc := working(base, repotest.Tree(fa))
	s := f.session(wc)
	plan, err := s.Compute(context.Background(), merge.Request{MergeSet: []string{m1, m2}})
	require.NoError(t, err)

	assert.Empty(t, plan.Issues)
	assert.Equal(t, []string{m1, m2}, plan.Parents)
	assert.Equal(t, map[string]string{"renamed": "f1", "new": "f2"}, replay(t, wc.Tree, plan))
}

type fakeExecutor struct {
	err   error
	calls int
}

func (e *fakeExecutor) Execute(ctx context.Context, plan *planner.Plan) error {
	e.calls++
	return e.err
}

func TestSession_States(t *testing.T) {
	f := newFixture(t)
	base := f.b.Commit(repo.NewTree())
	member := f.b.Commit(repotest.Tree(f.b.File("m1", root, "n", "x\n")), base)
	ctx := context.Background()
	req := merge.Request{MergeSet: []string{member}}

	t.Run("apply once", func(t *testing.T) {
		s := f.session(working(base, repo.NewTree()))
		exec := &fakeExecutor{}
		_, err := s.Apply(ctx, exec)
		require.ErrorIs(t, err, merge.ErrBadState)

		_, err = s.Compute(ctx, req)
		require.NoError(t, err)
		_, err = s.Compute(ctx, req)
		require.ErrorIs(t, err, merge.ErrBadState)

		stats, err := s.Apply(ctx, exec)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.FilesAdded)
		assert.Equal(t, merge.Applied, s.State())

		_, err = s.Apply(ctx, exec)
		require.ErrorIs(t, err, merge.ErrBadState)
		assert.Equal(t, 1, exec.calls)
	})

	t.Run("failure", func(t *testing.T) {
		s := f.session(working(base, repo.NewTree()))
		_, err := s.Compute(ctx, req)
		require.NoError(t, err)

		boom := errors.New("disk full")
		_, err = s.Apply(ctx, &fakeExecutor{err: boom})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, merge.Failed, s.State())
		require.ErrorIs(t, s.Abort(), merge.ErrBadState)
	})

	t.Run("abort", func(t *testing.T) {
		s := f.session(working(base, repo.NewTree()))
		_, err := s.Compute(ctx, req)
		require.NoError(t, err)
		require.NoError(t, s.Abort())
		assert.Equal(t, merge.Aborted, s.State())
		assert.Nil(t, s.Plan())

		_, err = s.Apply(ctx, &fakeExecutor{})
		require.ErrorIs(t, err, merge.ErrBadState)
	})
}
