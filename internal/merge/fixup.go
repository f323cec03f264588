package merge

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// fixup repairs structural problems that per-entry resolution can leave
// behind: entries whose directory was deleted, directories moved into their
// own subtree, and several entries claiming one name.
func (r *resolver) fixup() {
	for round := 0; round <= len(r.result); round++ {
		changed := r.reinstateOrphans()
		if r.breakMoveCycles() {
			changed = true
		}
		if !changed {
			break
		}
	}
	r.collapseAdds()
	r.renameCollisions()
}

func (r *resolver) sortedResultIDs() []string {
	ids := make([]string, 0, len(r.result))
	for id := range r.result {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reinstateOrphans brings back deleted directories that still have children
// in the result.
func (r *resolver) reinstateOrphans() bool {
	changed := false
	for {
		restored := false
		for _, id := range r.sortedResultIDs() {
			res := r.result[id]
			parent := res.entry.ParentID
			if parent == repo.RootID {
				continue
			}
			if p, ok := r.result[parent]; ok {
				if !p.entry.IsDir() {
					r.keepDirectory(p, res.entry.Name)
					restored = true
				}
				continue
			}

			e, ok := r.findAnywhere(parent)
			if !ok || !e.IsDir() {
				// No side knows the directory; move the entry to the root.
				r.s.log.Warn("entry parent unknown", zap.String("entry", id), zap.String("parent", parent))
				res.entry.ParentID = repo.RootID
				restored = true
				continue
			}
			r.result[parent] = &resolved{entry: e.Clone()}
			r.plan.AddIssue(planner.Issue{
				Kind:    planner.IssueOrphan,
				EntryID: parent,
				Path:    r.pathIn(e),
				Chosen:  "restored",
				Detail:  fmt.Sprintf("deleted directory still contains %s", res.entry.Name),
			})
			restored = true
		}
		if !restored {
			return changed
		}
		changed = true
	}
}

// keepDirectory undoes a change of kind on a directory that still has
// children.
func (r *resolver) keepDirectory(p *resolved, child string) {
	p.entry.Kind = repo.KindDir
	p.entry.ContentID, p.entry.Target = "", ""
	p.merged, p.conflicted = false, false
	r.plan.AddIssue(planner.Issue{
		Kind:    planner.IssueOrphan,
		EntryID: p.entry.ID,
		Path:    r.pathIn(p.entry),
		Chosen:  "kept as directory",
		Detail:  fmt.Sprintf("replaced directory still contains %s", child),
	})
}

// findAnywhere looks an identity up in the working copy, then the base, then
// each member.
func (r *resolver) findAnywhere(id string) (repo.Entry, bool) {
	if e, ok := r.sd.trees[workingSide].Get(id); ok {
		return e, true
	}
	if e, ok := r.sd.base.Get(id); ok {
		return e, true
	}
	for _, t := range r.sd.trees[1:] {
		if e, ok := t.Get(id); ok {
			return e, true
		}
	}
	return repo.Entry{}, false
}

// breakMoveCycles reverts the location of directories that ended up inside
// themselves.
func (r *resolver) breakMoveCycles() bool {
	changed := false
	for _, id := range r.sortedResultIDs() {
		cycle := r.cycleThrough(id)
		if len(cycle) == 0 {
			continue
		}
		changed = true
		for _, cid := range cycle {
			res := r.result[cid]
			orig, ok := r.sd.base.Get(cid)
			if !ok {
				orig, ok = r.sd.trees[workingSide].Get(cid)
			}
			if !ok {
				res.entry.ParentID = repo.RootID
			} else {
				res.entry.ParentID, res.entry.Name = orig.ParentID, orig.Name
			}
			r.plan.AddIssue(planner.Issue{
				Kind:    planner.IssueMoveCycle,
				EntryID: cid,
				Path:    r.pathIn(res.entry),
				Chosen:  "original location",
				Detail:  fmt.Sprintf("%d directories moved into each other", len(cycle)),
			})
		}
		r.s.log.Debug("move cycle reverted", zap.Strings("entries", cycle))
	}
	return changed
}

// cycleThrough returns the members of the parent cycle containing id, or nil.
func (r *resolver) cycleThrough(id string) []string {
	var chain []string
	seen := make(map[string]int)
	for cur := id; cur != repo.RootID; {
		if i, ok := seen[cur]; ok {
			if chain[i] != id {
				return nil
			}
			return chain[i:]
		}
		res, ok := r.result[cur]
		if !ok {
			return nil
		}
		seen[cur] = len(chain)
		chain = append(chain, cur)
		cur = res.entry.ParentID
	}
	return nil
}

type location struct {
	parentID string
	name     string
}

func (r *resolver) byLocation() map[location][]string {
	out := make(map[location][]string)
	for _, id := range r.sortedResultIDs() {
		e := r.result[id].entry
		loc := location{e.ParentID, e.Name}
		out[loc] = append(out[loc], id)
	}
	return out
}

// collapseAdds folds a locally added entry into an identical entry a member
// added at the same place.
func (r *resolver) collapseAdds() {
	for _, ids := range r.byLocation() {
		if len(ids) != 2 {
			continue
		}
		local, other := ids[0], ids[1]
		if !r.s.working.Pending[local] {
			local, other = other, local
		}
		if !r.s.working.Pending[local] || r.s.working.Pending[other] {
			continue
		}
		if r.sd.base.Has(other) || r.sd.trees[workingSide].Has(other) {
			continue
		}
		a, b := r.result[local].entry, r.result[other].entry
		if a.IsDir() || !a.SameContent(b) || !a.SameAttrs(b) {
			continue
		}
		delete(r.result, local)
		r.collapsed[local] = other
		r.s.log.Debug("identical add collapsed", zap.String("local", local), zap.String("member", other))
	}
}

// renameCollisions gives every entry but one a new name when several share
// a location. The entry already on disk under that name keeps it.
func (r *resolver) renameCollisions() {
	for {
		var locs []location
		groups := r.byLocation()
		for loc, ids := range groups {
			if len(ids) > 1 {
				locs = append(locs, loc)
			}
		}
		if len(locs) == 0 {
			return
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].parentID != locs[j].parentID {
				return locs[i].parentID < locs[j].parentID
			}
			return locs[i].name < locs[j].name
		})

		for _, loc := range locs {
			ids := groups[loc]
			keep := ids[0]
			for _, id := range ids {
				if w, ok := r.sd.trees[workingSide].Get(id); ok && w.ParentID == loc.parentID && w.Name == loc.name {
					keep = id
					break
				}
			}

			var cands []planner.Candidate
			for _, id := range ids {
				cands = append(cands, planner.Candidate{Side: id, Value: r.result[id].entry.Name})
			}
			for _, id := range ids {
				if id == keep {
					continue
				}
				res := r.result[id]
				res.entry.Name = collisionName(loc.name, id)
				r.plan.AddIssue(planner.Issue{
					Kind:       planner.IssueCollision,
					EntryID:    id,
					Path:       r.pathIn(res.entry),
					Candidates: cands,
					Chosen:     res.entry.Name,
					Detail:     fmt.Sprintf("%s kept by %s", loc.name, keep),
				})
			}
		}
	}
}

func collisionName(name, id string) string {
	short := id
	if len(short) > 6 {
		short = short[:6]
	}
	return name + "~" + short
}
