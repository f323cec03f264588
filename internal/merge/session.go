// Package merge computes how to turn the working directory into the merge of
// one or more versions.
//
// A Session compares every entry identity across the baseline, the working
// copy and each merge-set member, resolves each field (existence, location,
// kind, content, attributes) independently, records conflicts as issues, and
// emits a plan whose moves can be applied one at a time without two live
// entries ever sharing a name.
//
// Sessions move through Initialized, Computed and then Applied, Aborted or
// Failed. Failed means execution started and stopped at a failing step, so
// the disk was touched; Aborted means it never was.
package merge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/ancestry"
	"github.com/danieljhkim/wcmerge/internal/automerge"
	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// State is a session's lifecycle state.
type State int

const (
	Initialized State = iota
	Computed
	Applied
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Computed:
		return "computed"
	case Applied:
		return "applied"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ContentSource reads content by id.
type ContentSource interface {
	ReadBlob(ctx context.Context, id string) ([]byte, error)
}

// Untracked is an on-disk item the working copy does not track.
type Untracked struct {
	ParentID string
	Name     string
	Path     string
}

// WorkingCopy is the working side of a merge: what is on disk now.
type WorkingCopy struct {
	GraphID string

	// Parents are the working copy's current parents
	Parents []string

	// Tree holds every tracked entry present on disk, at its on-disk
	// location, with its on-disk content and attributes. Tracked entries
	// missing from disk are left out.
	Tree *repo.Tree

	// Pending marks entries added locally and not committed
	Pending map[string]bool

	Untracked []Untracked

	// Local reads working content not yet in the store
	Local ContentSource
}

// Parent returns the first parent or "".
func (wc *WorkingCopy) Parent() string {
	if len(wc.Parents) == 0 {
		return ""
	}
	return wc.Parents[0]
}

// Request selects what to merge.
type Request struct {
	// Baseline overrides the computed common ancestor
	Baseline string

	// MergeSet are the versions to merge into the working copy
	MergeSet []string

	// AllowNonLeaf permits members that have descendants
	AllowNonLeaf bool
}

// Executor applies a computed plan.
type Executor interface {
	Execute(ctx context.Context, plan *planner.Plan) error
}

// Options configure a session.
type Options struct {
	// Session names the parking lot and is recorded in the plan
	Session string

	// ParkingLot is the parking directory relative to the working root
	ParkingLot string

	Store  repo.Store
	Query  *ancestry.Query
	Merger automerge.Merger
	Policy inventory.Policy

	// StrictPortability turns portability warnings into an error
	StrictPortability bool

	Log *zap.Logger
}

// Session is one merge computation. It is not safe for concurrent use.
type Session struct {
	opts    Options
	working *WorkingCopy
	log     *zap.Logger

	state  State
	plan   *planner.Plan
	result *repo.Tree
	inv    *inventory.Inventory
}

// NewSession creates a session over a working copy.
func NewSession(opts Options, wc *WorkingCopy) *Session {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Query == nil {
		opts.Query = ancestry.New(opts.Store, log)
	}
	if opts.Merger == nil {
		opts.Merger = automerge.NewLineMerger(automerge.DefaultMarkerSize)
	}
	if wc.Pending == nil {
		wc.Pending = map[string]bool{}
	}
	return &Session{
		opts:    opts,
		working: wc,
		log:     log.With(zap.String("session", opts.Session)),
		state:   Initialized,
	}
}

// State returns the session state.
func (s *Session) State() State { return s.state }

// Plan returns the computed plan, or nil before Compute.
func (s *Session) Plan() *planner.Plan { return s.plan }

// Result returns the merged tree, or nil before Compute.
func (s *Session) Result() *repo.Tree { return s.result }

// Inventory returns the directory inventory built by Compute.
func (s *Session) Inventory() *inventory.Inventory { return s.inv }

// Compute builds the plan. Conflicts do not fail Compute; they are returned
// as issues in the plan.
func (s *Session) Compute(ctx context.Context, req Request) (*planner.Plan, error) {
	if s.state != Initialized {
		return nil, fmt.Errorf("%w: compute in state %s", ErrBadState, s.state)
	}

	sel, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	plan := planner.NewPlan(s.opts.Session, s.opts.ParkingLot)
	plan.Baseline = sel.baseline
	plan.Parents = sel.parents
	for _, w := range sel.warnings {
		plan.AddWarning(w)
	}

	if len(sel.members) == 0 {
		s.log.Info("nothing to merge", zap.Strings("requested", req.MergeSet))
		s.result = s.working.Tree.Clone()
		s.inv = inventory.New(s.opts.ParkingLot)
		s.plan = plan
		s.state = Computed
		return plan, nil
	}

	sides, err := s.loadSides(ctx, sel)
	if err != nil {
		return nil, err
	}

	r := newResolver(s, sides, plan)
	if err := r.resolve(ctx); err != nil {
		return nil, err
	}
	r.fixup()

	if err := s.checkObstructions(r.result); err != nil {
		return nil, err
	}

	em := newEmitter(s, r, plan)
	if err := em.bind(); err != nil {
		return nil, err
	}
	if err := em.checkPortability(); err != nil {
		return nil, err
	}
	if err := em.emit(); err != nil {
		return nil, err
	}

	s.result = r.resultTree()
	s.inv = em.inv
	s.plan = plan
	s.state = Computed

	s.log.Info("merge computed",
		zap.String("baseline", sel.baseline),
		zap.Strings("members", sel.members),
		zap.Int("steps", len(plan.Steps)),
		zap.Int("issues", len(plan.Issues)),
		zap.Int("parked", plan.Stats.Parked))
	return plan, nil
}

// Apply runs the plan once through exec.
func (s *Session) Apply(ctx context.Context, exec Executor) (*planner.Stats, error) {
	if s.state != Computed {
		return nil, fmt.Errorf("%w: apply in state %s", ErrBadState, s.state)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := exec.Execute(ctx, s.plan); err != nil {
		s.state = Failed
		s.log.Error("merge execution failed", zap.Error(err))
		return nil, err
	}

	s.state = Applied
	stats := s.plan.Stats
	return &stats, nil
}

// Abort discards a computed plan without touching the disk.
func (s *Session) Abort() error {
	if s.state != Initialized && s.state != Computed {
		return fmt.Errorf("%w: abort in state %s", ErrBadState, s.state)
	}
	s.state = Aborted
	s.plan = nil
	s.inv = nil
	return nil
}
