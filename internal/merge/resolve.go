package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/automerge"
	"github.com/danieljhkim/wcmerge/internal/hash"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// resolved is one entry of the merge result.
type resolved struct {
	entry repo.Entry

	// merged is set when the content came out of a content merge
	merged     bool
	conflicted bool
}

// resolver decides the merged value of every entry identity.
type resolver struct {
	s    *Session
	sd   *sides
	plan *planner.Plan

	result map[string]*resolved

	// collapsed maps a pending add to the identical entry that replaces it
	collapsed map[string]string
}

func newResolver(s *Session, sd *sides, plan *planner.Plan) *resolver {
	return &resolver{
		s:         s,
		sd:        sd,
		plan:      plan,
		result:    make(map[string]*resolved),
		collapsed: make(map[string]string),
	}
}

func (r *resolver) allIDs() []string {
	seen := make(map[string]bool)
	for _, id := range r.sd.base.IDs() {
		seen[id] = true
	}
	for _, t := range r.sd.trees {
		for _, id := range t.IDs() {
			seen[id] = true
		}
	}
	delete(seen, repo.RootID)

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *resolver) resolve(ctx context.Context) error {
	for _, id := range r.allIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		base, inBase := r.sd.base.Get(id)
		var present []int
		var missing []int
		for i, t := range r.sd.trees {
			if t.Has(id) {
				present = append(present, i)
			} else {
				missing = append(missing, i)
			}
		}

		if inBase && len(missing) > 0 {
			var modifiers []int
			for _, i := range present {
				e, _ := r.sd.trees[i].Get(id)
				if !e.Equal(base) {
					modifiers = append(modifiers, i)
				}
			}
			if len(modifiers) == 0 {
				continue
			}
			r.deleteModify(id, base, missing, modifiers)
		}
		if len(present) == 0 {
			continue
		}

		res, err := r.resolveEntry(ctx, id, base, inBase, present)
		if err != nil {
			return fmt.Errorf("entry %s: %w", id, err)
		}
		r.result[id] = res
	}
	return nil
}

func (r *resolver) deleteModify(id string, base repo.Entry, deleters, modifiers []int) {
	var cands []planner.Candidate
	for _, i := range deleters {
		cands = append(cands, planner.Candidate{Side: r.sd.labels[i], Value: "deleted"})
	}
	for _, i := range modifiers {
		cands = append(cands, planner.Candidate{Side: r.sd.labels[i], Value: "modified"})
	}
	p, _ := r.sd.base.Path(id)
	r.plan.AddIssue(planner.Issue{
		Kind:       planner.IssueDeleteModify,
		EntryID:    id,
		Path:       p,
		Candidates: cands,
		Chosen:     "kept " + r.sd.labels[modifiers[0]],
	})
	r.s.log.Debug("delete-modify conflict", zap.String("entry", id), zap.String("path", p))
}

// pick compares every present side against the base value and returns the
// winning side and the distinct changes. A winner of -1 means no side changed
// the field. Several distinct changes are a conflict; the first changed side
// wins, which is the working copy whenever it took part.
func pick(present []int, changed func(i int) bool, same func(i, j int) bool) (int, []int) {
	var distinct []int
	for _, i := range present {
		if !changed(i) {
			continue
		}
		dup := false
		for _, d := range distinct {
			if same(i, d) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, i)
		}
	}
	if len(distinct) == 0 {
		return -1, nil
	}
	return distinct[0], distinct
}

func (r *resolver) resolveEntry(ctx context.Context, id string, base repo.Entry, inBase bool, present []int) (*resolved, error) {
	val := make(map[int]repo.Entry, len(present))
	for _, i := range present {
		val[i], _ = r.sd.trees[i].Get(id)
	}

	out := &resolved{}
	if inBase {
		out.entry = base.Clone()
	} else {
		out.entry = val[present[0]].Clone()
	}

	// location
	w, distinct := pick(present,
		func(i int) bool { return !inBase || !val[i].SameLocation(base) },
		func(i, j int) bool { return val[i].SameLocation(val[j]) })
	if w >= 0 {
		out.entry.ParentID, out.entry.Name = val[w].ParentID, val[w].Name
	}
	if len(distinct) > 1 {
		cands := make([]planner.Candidate, len(distinct))
		for k, i := range distinct {
			p, _ := r.sd.trees[i].Path(id)
			cands[k] = planner.Candidate{Side: r.sd.labels[i], Value: p}
		}
		r.issue(planner.IssueDivergentMove, id, val[w], cands, r.sd.labels[w], "")
	}

	// kind
	w, distinct = pick(present,
		func(i int) bool { return !inBase || val[i].Kind != base.Kind },
		func(i, j int) bool { return val[i].Kind == val[j].Kind })
	if w >= 0 {
		out.entry.Kind = val[w].Kind
	}
	if len(distinct) > 1 {
		cands := make([]planner.Candidate, len(distinct))
		for k, i := range distinct {
			cands[k] = planner.Candidate{Side: r.sd.labels[i], Value: string(val[i].Kind)}
		}
		r.issue(planner.IssueDivergentKind, id, val[w], cands, r.sd.labels[w], "")
	}
	if inBase && out.entry.Kind != base.Kind {
		r.kindAgainstEdit(out, id, base, w, present, val)
	}
	kind := out.entry.Kind

	// content, among the sides that agree on the kind
	var sameKind []int
	for _, i := range present {
		if val[i].Kind == kind {
			sameKind = append(sameKind, i)
		}
	}
	baseHasKind := inBase && base.Kind == kind
	w, distinct = pick(sameKind,
		func(i int) bool { return !baseHasKind || !val[i].SameContent(base) },
		func(i, j int) bool { return val[i].SameContent(val[j]) })
	switch {
	case w >= 0 && kind == repo.KindDir:
		out.entry.ContentID, out.entry.Target = "", ""
	case len(distinct) > 1 && kind == repo.KindFile:
		if err := r.mergeContent(ctx, out, id, base, baseHasKind, distinct, val); err != nil {
			return nil, err
		}
	case w >= 0:
		out.entry.ContentID, out.entry.Target = val[w].ContentID, val[w].Target
		if len(distinct) > 1 {
			cands := make([]planner.Candidate, len(distinct))
			for k, i := range distinct {
				cands[k] = planner.Candidate{Side: r.sd.labels[i], Value: val[i].Target}
			}
			r.issue(planner.IssueDivergentContent, id, val[w], cands, r.sd.labels[w], "symlink targets differ")
		}
	}

	// attributes
	w, distinct = pick(present,
		func(i int) bool { return !inBase || !val[i].SameAttrs(base) },
		func(i, j int) bool { return val[i].SameAttrs(val[j]) })
	if w >= 0 {
		c := val[w].Clone()
		out.entry.Exec, out.entry.Xattrs = c.Exec, c.Xattrs
	}
	if len(distinct) > 1 {
		cands := make([]planner.Candidate, len(distinct))
		for k, i := range distinct {
			cands[k] = planner.Candidate{Side: r.sd.labels[i], Value: describeAttrs(val[i])}
		}
		r.issue(planner.IssueDivergentAttrs, id, val[w], cands, r.sd.labels[w], "")
	}

	return out, nil
}

// kindAgainstEdit records a conflict when one side replaced an entry with
// another kind while a side that kept the kind edited it. The working copy
// wins whenever it edited, so local changes are never removed from disk.
func (r *resolver) kindAgainstEdit(out *resolved, id string, base repo.Entry, changer int, present []int, val map[int]repo.Entry) {
	var editors []int
	for _, i := range present {
		if val[i].Kind == base.Kind && (!val[i].SameContent(base) || !val[i].SameAttrs(base)) {
			editors = append(editors, i)
		}
	}
	if len(editors) == 0 {
		return
	}

	chosen := changer
	if editors[0] == workingSide {
		chosen = workingSide
		out.entry.Kind = base.Kind
	}
	cands := []planner.Candidate{{Side: r.sd.labels[changer], Value: string(val[changer].Kind)}}
	for _, i := range editors {
		cands = append(cands, planner.Candidate{Side: r.sd.labels[i], Value: "modified " + string(base.Kind)})
	}
	r.issue(planner.IssueDivergentKind, id, val[chosen], cands, r.sd.labels[chosen], "kind changed on one side, edited on another")
}

// mergeContent folds every distinct file edit into one result and stores it.
func (r *resolver) mergeContent(ctx context.Context, out *resolved, id string, base repo.Entry, baseHasKind bool,
	distinct []int, val map[int]repo.Entry) error {
	var baseData []byte
	if baseHasKind {
		data, err := r.s.opts.Store.ReadBlob(ctx, base.ContentID)
		if err != nil {
			return fmt.Errorf("failed to read base content: %w", err)
		}
		baseData = data
	}

	ours, err := r.read(ctx, distinct[0], val[distinct[0]].ContentID)
	if err != nil {
		return err
	}
	var others [][]byte
	var labels []string
	for _, i := range distinct[1:] {
		data, err := r.read(ctx, i, val[i].ContentID)
		if err != nil {
			return err
		}
		others = append(others, data)
		labels = append(labels, r.sd.labels[i])
	}

	res, err := automerge.Fold(r.s.opts.Merger, baseData, ours, others, labels)
	if err != nil {
		return err
	}
	contentID, err := r.s.opts.Store.PutBlob(ctx, res.Data)
	if err != nil {
		return fmt.Errorf("failed to store merged content: %w", err)
	}
	out.entry.ContentID = contentID
	out.entry.Target = ""
	out.merged = true
	out.conflicted = res.Conflicted

	r.s.log.Debug("content merged",
		zap.String("entry", id),
		zap.Int("sides", len(distinct)),
		zap.Bool("conflicted", res.Conflicted),
		zap.Bool("binary", res.Binary))

	if res.Conflicted {
		cands := make([]planner.Candidate, len(distinct))
		for k, i := range distinct {
			cands[k] = planner.Candidate{Side: r.sd.labels[i], Value: hash.Short(val[i].ContentID, 12)}
		}
		chosen := "conflict markers"
		detail := fmt.Sprintf("%d conflicting hunks", res.Conflicts)
		if res.Binary {
			chosen = r.sd.labels[distinct[0]]
			detail = "binary content"
		}
		r.issue(planner.IssueDivergentContent, id, val[distinct[0]], cands, chosen, detail)
	}
	return nil
}

// read returns content seen by one side. Working content may exist only on disk.
func (r *resolver) read(ctx context.Context, side int, contentID string) ([]byte, error) {
	if side == workingSide && r.s.working.Local != nil {
		if data, err := r.s.working.Local.ReadBlob(ctx, contentID); err == nil {
			return data, nil
		}
	}
	data, err := r.s.opts.Store.ReadBlob(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read content %s: %w", hash.Short(contentID, 12), err)
	}
	return data, nil
}

func (r *resolver) issue(kind planner.IssueKind, id string, at repo.Entry, cands []planner.Candidate, chosen, detail string) {
	p := r.pathIn(at)
	r.plan.AddIssue(planner.Issue{
		Kind:       kind,
		EntryID:    id,
		Path:       p,
		Candidates: cands,
		Chosen:     chosen,
		Detail:     detail,
	})
	r.s.log.Debug("conflict", zap.String("kind", string(kind)), zap.String("entry", id), zap.String("path", p))
}

// pathIn finds a display path for an entry using whichever tree knows it.
func (r *resolver) pathIn(e repo.Entry) string {
	for _, t := range append([]*repo.Tree{r.sd.base}, r.sd.trees...) {
		if e.ParentID == repo.RootID {
			return e.Name
		}
		if p, err := t.Path(e.ParentID); err == nil {
			return p + "/" + e.Name
		}
	}
	return e.Name
}

func describeAttrs(e repo.Entry) string {
	var parts []string
	if e.Exec {
		parts = append(parts, "exec")
	}
	keys := make([]string, 0, len(e.Xattrs))
	for k := range e.Xattrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+e.Xattrs[k])
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// resultTree materializes the merge result.
func (r *resolver) resultTree() *repo.Tree {
	t := repo.NewTree()
	for _, res := range r.result {
		t.Put(res.entry.Clone())
	}
	return t
}
