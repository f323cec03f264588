package merge

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// replaceKey is the inventory key of the new incarnation of an entry whose
// kind changes. The old incarnation keeps the entry id.
func replaceKey(id string) string { return id + "~new" }

// emitter orders the changes from the working tree to the merge result.
type emitter struct {
	s    *Session
	r    *resolver
	plan *planner.Plan
	log  *zap.Logger

	src *repo.Tree
	dst *repo.Tree
	inv *inventory.Inventory
	sim *pathSim
}

func newEmitter(s *Session, r *resolver, plan *planner.Plan) *emitter {
	return &emitter{
		s:    s,
		r:    r,
		plan: plan,
		log:  s.log,
		src:  s.working.Tree,
		dst:  r.resultTree(),
		inv:  inventory.New(s.opts.ParkingLot),
	}
}

func (em *emitter) ids() []string {
	seen := make(map[string]bool)
	for _, id := range em.src.IDs() {
		seen[id] = true
	}
	for _, id := range em.dst.IDs() {
		seen[id] = true
	}
	delete(seen, repo.RootID)
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parentPath(t *repo.Tree, e repo.Entry) string {
	p, _ := t.Path(e.ParentID)
	return p
}

// replaced reports whether an entry exists on both sides with different kinds.
func (em *emitter) replaced(id string) bool {
	a, inSrc := em.src.Get(id)
	b, inDst := em.dst.Get(id)
	return inSrc && inDst && a.Kind != b.Kind
}

// bind records every entry's working location as its source binding and its
// result location as its target binding, then parks rename cycles.
func (em *emitter) bind() error {
	for _, id := range em.ids() {
		a, inSrc := em.src.Get(id)
		b, inDst := em.dst.Get(id)

		if em.replaced(id) {
			if err := em.inv.BindSource(a.ParentID, parentPath(em.src, a), id, a.Name, a.IsDir(), a, true); err != nil {
				return err
			}
			if err := em.inv.BindTarget(a.ParentID, parentPath(em.src, a), id, a.Name, a.IsDir(), a, false); err != nil {
				return err
			}
			key := replaceKey(id)
			if err := em.inv.BindSource(b.ParentID, parentPath(em.dst, b), key, b.Name, b.IsDir(), b, false); err != nil {
				return err
			}
			if err := em.inv.BindTarget(b.ParentID, parentPath(em.dst, b), key, b.Name, b.IsDir(), b, true); err != nil {
				return err
			}
			continue
		}

		at := a
		if !inSrc {
			at = b
		}
		if err := em.inv.BindSource(at.ParentID, parentPath(em.src, at), id, at.Name, at.IsDir(), a, inSrc); err != nil {
			return err
		}
		to, toTree := b, em.dst
		if !inDst {
			to, toTree = a, em.src
		}
		if err := em.inv.BindTarget(to.ParentID, parentPath(toTree, to), id, to.Name, to.IsDir(), b, inDst); err != nil {
			return err
		}
	}

	parked := em.inv.CheckForSwaps()
	if len(parked) > 0 {
		ids := make([]string, len(parked))
		for i, e := range parked {
			ids[i] = e.ID
		}
		em.log.Debug("rename cycles found", zap.Strings("parked", ids))
	}
	return nil
}

// checkPortability reports hazards in names the merge introduces. Names
// already on disk at the same place are not reported, unless they collide
// with an introduced name.
func (em *emitter) checkPortability() error {
	if em.s.opts.Policy == nil {
		return nil
	}
	introduced := func(id string) bool {
		e, ok := em.inv.Get(id)
		return !ok || !e.Source.Active || e.Moves()
	}

	var errs *multierror.Error
	for _, w := range em.inv.CheckForPortability(em.s.opts.Policy) {
		if !introduced(w.Entry) && (w.Conflicting == "" || !introduced(w.Conflicting)) {
			continue
		}
		em.plan.AddWarning(w.String())
		errs = multierror.Append(errs, fmt.Errorf("%s", w.String()))
	}
	if errs != nil && em.s.opts.StrictPortability {
		return fmt.Errorf("%w: %w", ErrNotPortable, errs.ErrorOrNil())
	}
	return nil
}

type opKind int

const (
	opRemoveDir opKind = iota
	opMove
	opCreateDir
	opUnpark
)

// structOp is a structural change waiting for its preconditions.
type structOp struct {
	kind  opKind
	key   string
	isDir bool
	to    location
	entry repo.Entry
}

// emit appends the steps in an order that keeps every intermediate state
// valid: park cycle members, drop files, settle the directory structure,
// then write content.
func (em *emitter) emit() error {
	em.sim = newPathSim(em.s.opts.ParkingLot, em.src)

	em.emitParking()
	em.emitFileRemovals()
	if err := em.emitStructure(); err != nil {
		return err
	}
	em.emitContent()
	em.emitPending()
	return nil
}

func (em *emitter) emitParking() {
	parked := em.inv.Parked()
	sort.SliceStable(parked, func(i, j int) bool {
		di := strings.Count(parked[i].Source.Path(), "/")
		dj := strings.Count(parked[j].Source.Path(), "/")
		if di != dj {
			return di > dj
		}
		return parked[i].ID < parked[j].ID
	})
	for _, e := range parked {
		em.park(e.ID, e.IsDir, e.Reason)
	}
}

func parkingFor(r inventory.Reason) planner.Parking {
	switch r {
	case inventory.ParkedForSwap:
		return planner.ParkSwap
	case inventory.ParkedForCycle:
		return planner.ParkCycle
	default:
		return planner.ParkOrder
	}
}

func (em *emitter) park(key string, isDir bool, reason inventory.Reason) {
	from := em.sim.path(key)
	em.sim.park(key)
	em.plan.Add(planner.Move{
		ID:      key,
		From:    from,
		To:      em.sim.path(key),
		IsDir:   isDir,
		Parking: parkingFor(reason),
		Reason:  fmt.Sprintf("park to break %s", reason),
	})
	em.log.Debug("parking entry", zap.String("entry", key), zap.Stringer("reason", reason))
}

func (em *emitter) emitFileRemovals() {
	for _, id := range em.ids() {
		a, inSrc := em.src.Get(id)
		if !inSrc || a.IsDir() {
			continue
		}
		if _, collapsed := em.r.collapsed[id]; collapsed {
			continue
		}
		reason := "deleted by merge"
		if em.dst.Has(id) {
			if !em.replaced(id) {
				continue
			}
			b, _ := em.dst.Get(id)
			reason = fmt.Sprintf("replaced by %s", b.Kind)
		}
		em.plan.Add(planner.Remove{ID: id, Path: em.sim.path(id), EntryKind: a.Kind, Reason: reason})
		em.sim.remove(id)
	}
}

func (em *emitter) structuralOps() []*structOp {
	var ops []*structOp
	for _, id := range em.ids() {
		a, inSrc := em.src.Get(id)
		b, inDst := em.dst.Get(id)
		switch {
		case inSrc && inDst && a.Kind == b.Kind:
			if a.SameLocation(b) {
				continue
			}
			kind := opMove
			if em.sim.parked(id) {
				kind = opUnpark
			}
			ops = append(ops, &structOp{kind: kind, key: id, isDir: a.IsDir(), to: location{b.ParentID, b.Name}, entry: b})
		default:
			if inSrc && a.IsDir() {
				ops = append(ops, &structOp{kind: opRemoveDir, key: id, isDir: true, entry: a})
			}
			if inDst && b.IsDir() {
				ops = append(ops, &structOp{kind: opCreateDir, key: id, isDir: true, to: location{b.ParentID, b.Name}, entry: b})
			}
		}
	}
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].kind != ops[j].kind {
			return ops[i].kind < ops[j].kind
		}
		return ops[i].key < ops[j].key
	})
	return ops
}

func (em *emitter) ready(op *structOp) bool {
	switch op.kind {
	case opRemoveDir:
		return em.sim.children(op.key) == 0
	case opCreateDir:
		return em.sim.live(op.to.parentID) && em.sim.free(op.to, op.key)
	default:
		if !em.sim.live(op.to.parentID) || !em.sim.free(op.to, op.key) {
			return false
		}
		return !op.isDir || !em.sim.within(op.to.parentID, op.key)
	}
}

func (em *emitter) apply(op *structOp) {
	switch op.kind {
	case opRemoveDir:
		reason := "deleted by merge"
		if b, ok := em.dst.Get(op.key); ok {
			reason = fmt.Sprintf("replaced by %s", b.Kind)
		}
		em.plan.Add(planner.Remove{ID: op.key, Path: em.sim.path(op.key), EntryKind: repo.KindDir, Reason: reason})
		em.sim.remove(op.key)
	case opCreateDir:
		em.sim.add(op.key, op.to, true)
		em.plan.Add(planner.GetFromRepo{Entry: op.entry.Clone(), Path: em.sim.path(op.key), Reason: "added by merge"})
	default:
		from := em.sim.path(op.key)
		parking := planner.ParkingNone
		reason := "moved by merge"
		if op.kind == opUnpark {
			parking = planner.Unpark
			reason = "return from parking lot"
		}
		em.sim.move(op.key, op.to)
		em.plan.Add(planner.Move{
			ID:       op.key,
			From:     from,
			To:       em.sim.path(op.key),
			ParentID: op.to.parentID,
			Name:     op.to.name,
			IsDir:    op.isDir,
			Parking:  parking,
			Reason:   reason,
		})
	}
}

// emitStructure applies moves, directory creations and directory removals as
// their preconditions are met. When nothing can proceed, the lowest pending
// mover is parked, which frees its name and its subtree.
func (em *emitter) emitStructure() error {
	pending := em.structuralOps()
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, op := range pending {
			if em.ready(op) {
				em.apply(op)
				progressed = true
				continue
			}
			rest = append(rest, op)
		}
		pending = rest
		if progressed || len(pending) == 0 {
			continue
		}

		var victim *structOp
		for _, op := range pending {
			if op.kind == opMove {
				victim = op
				break
			}
		}
		if victim == nil {
			var errs *multierror.Error
			for _, op := range pending {
				errs = multierror.Append(errs, &inventory.FaultError{Entry: op.key, Directory: op.to.parentID, Err: ErrDeadlock})
			}
			return fmt.Errorf("%w: %w", ErrDeadlock, errs.ErrorOrNil())
		}
		if _, err := em.inv.Park(victim.key, inventory.ParkedForOrder); err != nil {
			return err
		}
		em.park(victim.key, victim.isDir, inventory.ParkedForOrder)
		victim.kind = opUnpark
	}
	return nil
}

// emitContent writes new files and symlinks and changes existing content,
// sorted by final path.
func (em *emitter) emitContent() {
	type pendingStep struct {
		path string
		step planner.Step
	}
	var steps []pendingStep

	for _, id := range em.dst.IDs() {
		if id == repo.RootID {
			continue
		}
		b, _ := em.dst.Get(id)
		p, _ := em.dst.Path(id)
		a, inSrc := em.src.Get(id)
		res := em.r.result[id]

		switch {
		case !inSrc || a.Kind != b.Kind:
			if b.IsDir() {
				continue
			}
			steps = append(steps, pendingStep{p, planner.GetFromRepo{Entry: b.Clone(), Path: p, Reason: "added by merge"}})
		default:
			content, attrs := !a.SameContent(b), !a.SameAttrs(b)
			if !content && !attrs {
				continue
			}
			alter := planner.Alter{Entry: b.Clone(), Path: p, Content: content, Attrs: attrs}
			if res != nil && content {
				alter.Merged, alter.Conflicted = res.merged, res.conflicted
			}
			switch {
			case alter.Conflicted:
				alter.Reason = "merged with conflicts"
			case alter.Merged:
				alter.Reason = "content merged"
			case content:
				alter.Reason = "content changed"
			default:
				alter.Reason = "attributes changed"
			}
			steps = append(steps, pendingStep{p, alter})
		}
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].path < steps[j].path })
	for _, s := range steps {
		em.plan.Add(s.step)
	}
}

// emitPending keeps local additions pending and drops the ones a member
// added identically.
func (em *emitter) emitPending() {
	var ids []string
	for id := range em.s.working.Pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if other, ok := em.r.collapsed[id]; ok {
			p, _ := em.src.Path(id)
			em.plan.Add(planner.Unadd{ID: id, Path: p, Reason: fmt.Sprintf("same as %s from merge", other)})
			continue
		}
		b, ok := em.dst.Get(id)
		if !ok {
			continue
		}
		p, _ := em.dst.Path(id)
		em.plan.Add(planner.AddNew{Entry: b.Clone(), Path: p, Reason: "local addition"})
	}
}

// pathSim tracks where every entry is on disk while steps are emitted.
type pathSim struct {
	lot   string
	nodes map[string]*simNode
	names map[location]string
	kids  map[string]int
}

type simNode struct {
	loc    location
	isDir  bool
	parked bool
}

func newPathSim(lot string, t *repo.Tree) *pathSim {
	m := &pathSim{
		lot:   lot,
		nodes: make(map[string]*simNode),
		names: make(map[location]string),
		kids:  make(map[string]int),
	}
	for _, id := range t.IDs() {
		if id == repo.RootID {
			continue
		}
		e, _ := t.Get(id)
		m.add(id, location{e.ParentID, e.Name}, e.IsDir())
	}
	return m
}

func (m *pathSim) add(key string, loc location, isDir bool) {
	m.nodes[key] = &simNode{loc: loc, isDir: isDir}
	m.names[loc] = key
	m.kids[loc.parentID]++
}

// detach takes a node out of its directory. Parked nodes are already out.
func (m *pathSim) detach(n *simNode) {
	if n.parked {
		return
	}
	delete(m.names, n.loc)
	m.kids[n.loc.parentID]--
}

func (m *pathSim) remove(key string) {
	if n, ok := m.nodes[key]; ok {
		m.detach(n)
		delete(m.nodes, key)
	}
}

func (m *pathSim) park(key string) {
	n := m.nodes[key]
	m.detach(n)
	n.parked = true
}

func (m *pathSim) move(key string, to location) {
	n := m.nodes[key]
	m.detach(n)
	n.parked = false
	n.loc = to
	m.names[to] = key
	m.kids[to.parentID]++
}

func (m *pathSim) parked(key string) bool {
	n, ok := m.nodes[key]
	return ok && n.parked
}

func (m *pathSim) path(key string) string {
	if key == repo.RootID {
		return ""
	}
	n := m.nodes[key]
	if n.parked {
		return path.Join(m.lot, key)
	}
	return path.Join(m.path(n.loc.parentID), n.loc.name)
}

// live reports whether a directory exists at a reachable, unparked place.
func (m *pathSim) live(dir string) bool {
	for cur := dir; cur != repo.RootID; {
		n, ok := m.nodes[cur]
		if !ok || !n.isDir || n.parked {
			return false
		}
		cur = n.loc.parentID
	}
	return true
}

func (m *pathSim) free(loc location, key string) bool {
	occ, ok := m.names[loc]
	return !ok || occ == key
}

// within reports whether dir is key or lies inside it.
func (m *pathSim) within(dir, key string) bool {
	for cur := dir; cur != repo.RootID; {
		if cur == key {
			return true
		}
		n, ok := m.nodes[cur]
		if !ok {
			return false
		}
		cur = n.loc.parentID
	}
	return false
}

// children counts the entries directly inside a directory, parked ones
// excluded.
func (m *pathSim) children(dir string) int {
	return m.kids[dir]
}
