package planner

import (
	"strings"
	"testing"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

func fileEntry(id, name string) repo.Entry {
	return repo.Entry{ID: id, ParentID: repo.RootID, Name: name, Kind: repo.KindFile, ContentID: "c-" + id}
}

func TestNewPlan(t *testing.T) {
	plan := NewPlan("20240101T000000-abc", ".wcmerge/parking/20240101T000000-abc")

	if !plan.Empty() {
		t.Error("expected empty plan")
	}
	if plan.Steps == nil {
		t.Error("expected Steps to be initialized")
	}
	if plan.Issues == nil {
		t.Error("expected Issues to be initialized")
	}
	if plan.HasIssues() {
		t.Error("expected no issues")
	}
}

func TestPlan_Stats(t *testing.T) {
	plan := NewPlan("s", "lot")

	plan.Add(Move{ID: "i1", From: "a", To: "lot/i1", Parking: ParkSwap})
	plan.Add(Move{ID: "i2", From: "b", To: "lot/i2", Parking: ParkSwap})
	plan.Add(Remove{ID: "i3", Path: "old.txt", EntryKind: repo.KindFile})
	plan.Add(Remove{ID: "d1", Path: "olddir", EntryKind: repo.KindDir})
	plan.Add(GetFromRepo{Entry: repo.Entry{ID: "d2", ParentID: repo.RootID, Name: "newdir", Kind: repo.KindDir}, Path: "newdir"})
	plan.Add(Move{ID: "i1", From: "lot/i1", To: "b", Parking: Unpark})
	plan.Add(Move{ID: "i2", From: "lot/i2", To: "a", Parking: Unpark})
	plan.Add(GetFromRepo{Entry: fileEntry("i4", "new.txt"), Path: "new.txt"})
	plan.Add(Alter{Entry: fileEntry("i1", "b"), Path: "b", Content: true, Merged: true})
	plan.Add(Alter{Entry: fileEntry("i5", "c"), Path: "c", Content: true, Merged: true, Conflicted: true})

	want := Stats{
		DirsAdded:    1,
		DirsDeleted:  1,
		FilesAdded:   1,
		FilesChanged: 3,
		FilesDeleted: 1,
		FilesMerged:  1,
		Parked:       2,
	}
	if plan.Stats != want {
		t.Errorf("stats = %+v, want %+v", plan.Stats, want)
	}
	if got := len(plan.StepsOf(KindMove)); got != 4 {
		t.Errorf("expected 4 moves, got %d", got)
	}
}

func TestPlan_HasIssues(t *testing.T) {
	tests := []struct {
		name    string
		issues  []Issue
		wantHas bool
	}{
		{name: "no issues", wantHas: false},
		{
			name:    "unresolved",
			issues:  []Issue{{Kind: IssueDivergentMove, EntryID: "i1", Path: "x.txt"}},
			wantHas: true,
		},
		{
			name:    "all resolved",
			issues:  []Issue{{Kind: IssueDivergentContent, EntryID: "i1", Resolved: true}},
			wantHas: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := NewPlan("s", "lot")
			for _, is := range tt.issues {
				plan.AddIssue(is)
			}
			if got := plan.HasIssues(); got != tt.wantHas {
				t.Errorf("HasIssues() = %v, want %v", got, tt.wantHas)
			}
		})
	}
}

func TestMarshalUnmarshal_PreservesOrderAndFields(t *testing.T) {
	plan := NewPlan("sess", ".wcmerge/parking/sess")
	plan.Baseline = "base"
	plan.Parents = []string{"p1", "p2"}
	plan.Add(Move{ID: "i1", From: "a", To: ".wcmerge/parking/sess/i1", Parking: ParkCycle, Reason: "rename cycle"})
	plan.Add(Remove{ID: "i2", Path: "gone", EntryKind: repo.KindSymlink})
	exec := fileEntry("i3", "tool.sh")
	exec.Exec = true
	exec.Xattrs = map[string]string{"user.origin": "merge"}
	plan.Add(Alter{Entry: exec, Path: "tool.sh", Attrs: true})
	plan.Add(AddNew{Entry: fileEntry("i4", "local.txt"), Path: "local.txt"})
	plan.Add(Unadd{ID: "i5", Path: "dup.txt"})
	plan.AddIssue(Issue{Kind: IssueDivergentMove, EntryID: "i1", Path: "x.txt",
		Candidates: []Candidate{{Side: "p1", Value: "x.txt"}, {Side: "p2", Value: "y.txt"}}, Chosen: "x.txt"})
	plan.AddWarning("CON: reserved device name")

	data, err := Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(loaded.Steps) != len(plan.Steps) {
		t.Fatalf("expected %d steps, got %d", len(plan.Steps), len(loaded.Steps))
	}
	for i := range plan.Steps {
		if loaded.Steps[i].Kind() != plan.Steps[i].Kind() {
			t.Errorf("step %d: kind %s, want %s", i, loaded.Steps[i].Kind(), plan.Steps[i].Kind())
		}
	}
	mv, ok := loaded.Steps[0].(Move)
	if !ok || mv.Parking != ParkCycle || mv.Reason != "rename cycle" {
		t.Errorf("unexpected first step: %#v", loaded.Steps[0])
	}
	alter := loaded.Steps[2].(Alter)
	if !alter.Entry.Exec || alter.Entry.Xattrs["user.origin"] != "merge" {
		t.Errorf("alter attrs lost: %#v", alter.Entry)
	}
	if loaded.Stats != plan.Stats {
		t.Errorf("stats = %+v, want %+v", loaded.Stats, plan.Stats)
	}
	if len(loaded.Issues) != 1 || loaded.Issues[0].Candidates[1].Value != "y.txt" {
		t.Errorf("issues not preserved: %+v", loaded.Issues)
	}
	if loaded.Session != "sess" || loaded.Baseline != "base" || len(loaded.Parents) != 2 {
		t.Errorf("header not preserved: %+v", loaded)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad yaml", data: "steps: [unterminated"},
		{name: "wrong version", data: "version: 9\nsession: s\n"},
		{name: "unknown kind", data: "version: 1\nsteps:\n  - kind: teleport\n"},
		{name: "missing entry", data: "version: 1\nsteps:\n  - kind: get\n    path: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReport(t *testing.T) {
	plan := NewPlan("s", "lot")
	if got := Report(plan, true); !strings.Contains(got, "nothing to do") {
		t.Errorf("expected empty report, got %q", got)
	}

	plan.Add(Move{ID: "i1", From: "a", To: "lot/i1", Parking: ParkSwap, Reason: "swap with i2"})
	plan.Add(GetFromRepo{Entry: fileEntry("i4", "new.txt"), Path: "new.txt"})
	plan.AddIssue(Issue{Kind: IssueDivergentContent, EntryID: "i9", Path: "main.go"})
	plan.AddWarning("a.txt: trailing dot or space")

	brief := Report(plan, false)
	if !strings.Contains(brief, "2 steps") {
		t.Errorf("missing step count: %q", brief)
	}
	if strings.Contains(brief, "swap with i2") {
		t.Errorf("brief report should not list steps: %q", brief)
	}
	if !strings.Contains(brief, "1 unresolved issue") || !strings.Contains(brief, "main.go") {
		t.Errorf("missing issues: %q", brief)
	}

	verbose := Report(plan, true)
	if !strings.Contains(verbose, "park a -> lot/i1") || !strings.Contains(verbose, "# swap with i2") {
		t.Errorf("verbose report missing step: %q", verbose)
	}
	if !strings.Contains(verbose, "warning:") {
		t.Errorf("missing warnings: %q", verbose)
	}
}
