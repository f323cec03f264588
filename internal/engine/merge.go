package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/ancestry"
	"github.com/danieljhkim/wcmerge/internal/automerge"
	"github.com/danieljhkim/wcmerge/internal/clock"
	"github.com/danieljhkim/wcmerge/internal/inventory"
	"github.com/danieljhkim/wcmerge/internal/merge"
	"github.com/danieljhkim/wcmerge/internal/planner"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// ComputeMerge computes the plan that merges the requested versions into the
// working copy. The disk is not touched; merged file content is stored in the
// repository so the plan can be applied later.
func (e *Engine) ComputeMerge(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	var res *MergeResult
	err := e.withLock("merge", func() error {
		var err error
		res, err = e.computeMerge(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// computeMerge is ComputeMerge without the lock.
func (e *Engine) computeMerge(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(req.Versions))
	for _, v := range req.Versions {
		id, err := e.store.ResolvePrefix(ctx, ws.GraphID, v)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve version %q: %w", v, err)
		}
		members = append(members, id)
	}
	baseline := ""
	if req.Baseline != "" {
		if baseline, err = e.store.ResolvePrefix(ctx, ws.GraphID, req.Baseline); err != nil {
			return nil, fmt.Errorf("failed to resolve baseline %q: %w", req.Baseline, err)
		}
	}

	snap, err := e.scan(ctx, ws)
	if err != nil {
		return nil, fmt.Errorf("failed to scan working directory: %w", err)
	}

	policy, err := inventory.NewPortabilityPolicy(e.settings.Portability.Deny)
	if err != nil {
		return nil, fmt.Errorf("invalid portability settings: %w", err)
	}

	session := clock.SessionName(e.clock, uuid.NewString()[:8])
	s := merge.NewSession(merge.Options{
		Session:           session,
		ParkingLot:        e.paths.RelParkingLot(session),
		Store:             e.store,
		Query:             ancestry.New(e.store, e.log),
		Merger:            automerge.NewLineMerger(e.settings.Merge.MarkerSize),
		Policy:            policy,
		StrictPortability: e.settings.Portability.Strict,
		Log:               e.log,
	}, workingCopy(ws, snap))

	plan, err := s.Compute(ctx, merge.Request{
		Baseline:     baseline,
		MergeSet:     members,
		AllowNonLeaf: req.AllowNonLeaf || e.settings.Merge.AllowNonLeaf,
	})
	if err != nil {
		return nil, err
	}

	if req.SavePlan != "" {
		data, err := planner.Marshal(plan)
		if err != nil {
			return nil, err
		}
		if err := e.fs.AtomicWrite(req.SavePlan, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to save plan: %w", err)
		}
		e.log.Info("plan saved", zap.String("file", req.SavePlan))
	}

	return &MergeResult{
		Session:      s,
		Plan:         plan,
		Stats:        plan.Stats,
		Parents:      plan.Parents,
		Issues:       plan.Issues,
		Warnings:     plan.Warnings,
		startParents: slices.Clone(ws.Parents),
	}, nil
}

// ApplyMerge executes a computed merge and records the outcome: the new
// parents, the tracked entries and the merge issues. Issues resolved earlier
// are dropped. When a step fails, the state reflects the steps that ran.
func (e *Engine) ApplyMerge(ctx context.Context, res *MergeResult) (*planner.Stats, error) {
	var stats *planner.Stats
	err := e.withLock("merge", func() error {
		var err error
		stats, err = e.applyMerge(ctx, res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// applyMerge is ApplyMerge without the lock.
func (e *Engine) applyMerge(ctx context.Context, res *MergeResult) (*planner.Stats, error) {
	ws, err := e.loadState()
	if err != nil {
		return nil, err
	}
	if !slices.Equal(ws.Parents, res.startParents) {
		if aerr := res.Session.Abort(); aerr != nil {
			e.log.Warn("failed to abort merge session", zap.String("session", res.Plan.Session), zap.Error(aerr))
		}
		return nil, ErrStateChanged
	}

	exec := NewExecutor(e.fs, e.store, e.paths.Root, ws, e.log)
	stats, err := res.Session.Apply(ctx, exec)
	if err != nil {
		if exec.Applied > 0 {
			if serr := e.saveState(ws); serr != nil {
				e.log.Error("failed to save state after failed merge", zap.Error(serr))
			}
		}
		return nil, err
	}

	// Tracked entries missing from disk that the merge also dropped.
	if !slices.Equal(res.Plan.Parents, res.startParents) {
		result := res.Session.Result()
		for id := range ws.Entries {
			if !result.Has(id) {
				ws.Untrack(id)
			}
		}
	}

	ws.Parents = slices.Clone(res.Plan.Parents)
	if err := e.rebase(ctx, ws); err != nil {
		return nil, err
	}
	ws.ClearResolved()
	ws.Issues = append(ws.Issues, res.Plan.Issues...)
	if err := e.saveState(ws); err != nil {
		return nil, err
	}

	res.Applied = true
	e.log.Info("merge applied",
		zap.Strings("parents", res.Plan.Parents),
		zap.Int("steps", len(res.Plan.Steps)),
		zap.Int("issues", len(res.Plan.Issues)))
	return stats, nil
}

// rebase points the recorded content of committed entries at the first
// parent, so later scans report merged changes as modifications.
func (e *Engine) rebase(ctx context.Context, ws *state.WorkingState) error {
	if ws.Parent() == "" {
		return nil
	}
	tree, err := e.store.FetchTree(ctx, ws.Parent())
	if err != nil {
		return fmt.Errorf("failed to fetch parent tree: %w", err)
	}
	for id, te := range ws.Entries {
		if te.PendingAdd {
			continue
		}
		pe, ok := tree.Get(id)
		if !ok || pe.Kind != te.Kind {
			continue
		}
		c := pe.Clone()
		te.ContentID, te.Target, te.Exec, te.Xattrs = c.ContentID, c.Target, c.Exec, c.Xattrs
		ws.Entries[id] = te
	}
	return nil
}

// PreviewMerge renders a computed plan for review.
func (e *Engine) PreviewMerge(plan *planner.Plan, verbose bool) string {
	return planner.Report(plan, verbose)
}

// Merge computes a merge and, unless DryRun is set, applies it. Both happen
// under one hold of the working-copy lock.
func (e *Engine) Merge(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	var res *MergeResult
	err := e.withLock("merge", func() error {
		var err error
		res, err = e.mergeLocked(ctx, req)
		return err
	})
	return res, err
}

func (e *Engine) mergeLocked(ctx context.Context, req *MergeRequest) (*MergeResult, error) {
	res, err := e.computeMerge(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.DryRun {
		if err := res.Session.Abort(); err != nil {
			return nil, err
		}
		return res, nil
	}
	if _, err := e.applyMerge(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// Update merges the unique leaf descending from the working parent.
func (e *Engine) Update(ctx context.Context, req *UpdateRequest) (*UpdateResult, error) {
	var out *UpdateResult
	err := e.withLock("update", func() error {
		ws, err := e.loadState()
		if err != nil {
			return err
		}
		if ws.Parent() == "" {
			return ErrNoParent
		}
		if ws.MergePending() {
			return merge.ErrMergePending
		}

		leaves, err := ancestry.New(e.store, e.log).FindDescendantLeaves(ctx, ws.Parent(), true)
		if err != nil {
			return err
		}
		switch leaves.Status {
		case ancestry.IsLeaf:
			out = &UpdateResult{UpToDate: true}
			return nil
		case ancestry.Multiple:
			return fmt.Errorf("%w: merge one of them explicitly", ErrMultipleLeaves)
		}

		target := leaves.Leaves[0]
		res, err := e.mergeLocked(ctx, &MergeRequest{Versions: []string{target}, DryRun: req.DryRun})
		if err != nil {
			return err
		}
		out = &UpdateResult{Target: target, Merge: res}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
