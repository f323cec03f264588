package merge

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/ancestry"
	"github.com/danieljhkim/wcmerge/internal/hash"
	"github.com/danieljhkim/wcmerge/internal/repo"
)

// selection is a validated request.
type selection struct {
	members  []string
	baseline string
	parents  []string
	warnings []string
}

func (s *Session) validate(ctx context.Context, req Request) (*selection, error) {
	if len(req.MergeSet) == 0 {
		return nil, ErrEmptyMergeSet
	}
	if len(s.working.Parents) > 1 {
		return nil, ErrMergePending
	}

	q := s.opts.Query
	sel := &selection{}
	p0 := s.working.Parent()

	for _, id := range lo.Uniq(req.MergeSet) {
		n, err := s.opts.Store.FetchNode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("unknown version %s: %w", id, err)
		}
		if n.GraphID() != s.working.GraphID {
			return nil, fmt.Errorf("%w: %s", ErrForeignVersion, id)
		}

		if !req.AllowNonLeaf {
			res, err := q.FindDescendantLeaves(ctx, id, true)
			if err != nil {
				return nil, err
			}
			if res.Status != ancestry.IsLeaf {
				return nil, fmt.Errorf("%w: %s (pass --allow-non-leaf to merge it anyway)", ErrNotLeaf, hash.Short(id, 12))
			}
		}

		if p0 != "" {
			rel, err := q.Relationship(ctx, id, p0)
			if err != nil {
				return nil, err
			}
			if rel == ancestry.Same || rel == ancestry.Ancestor {
				sel.warnings = append(sel.warnings,
					fmt.Sprintf("%s is already part of the working copy", hash.Short(id, 12)))
				continue
			}
		}
		sel.members = append(sel.members, id)
	}

	if req.Baseline != "" {
		if _, err := s.opts.Store.FetchNode(ctx, req.Baseline); err != nil {
			return nil, fmt.Errorf("unknown baseline %s: %w", req.Baseline, err)
		}
	}

	if len(sel.members) == 0 {
		sel.parents = slices.Clone(s.working.Parents)
		return sel, nil
	}

	switch {
	case req.Baseline != "":
		sel.baseline = req.Baseline
	case p0 != "":
		ca, err := q.CommonAncestor(ctx, append([]string{p0}, sel.members...)...)
		if err != nil {
			return nil, fmt.Errorf("failed to find common ancestor: %w", err)
		}
		sel.baseline = ca
	}

	parents, err := minimalParents(ctx, q, p0, sel.members)
	if err != nil {
		return nil, err
	}
	sel.parents = parents

	s.log.Debug("merge validated",
		zap.String("parent", p0),
		zap.Strings("members", sel.members),
		zap.String("baseline", sel.baseline),
		zap.Strings("parents", parents))
	return sel, nil
}

// minimalParents drops every candidate that is an ancestor of another, keeping
// the working parent first.
func minimalParents(ctx context.Context, q *ancestry.Query, p0 string, members []string) ([]string, error) {
	candidates := members
	if p0 != "" {
		candidates = append([]string{p0}, members...)
	}
	candidates = lo.Uniq(candidates)

	var out []string
	for i, c := range candidates {
		covered := false
		for j, other := range candidates {
			if i == j {
				continue
			}
			rel, err := q.Relationship(ctx, c, other)
			if err != nil {
				return nil, err
			}
			if rel == ancestry.Ancestor {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, c)
		}
	}
	return out, nil
}

// sides are the trees taking part in a merge. Index 0 is the working copy.
type sides struct {
	base   *repo.Tree
	trees  []*repo.Tree
	labels []string
}

const workingSide = 0

func (s *Session) loadSides(ctx context.Context, sel *selection) (*sides, error) {
	sd := &sides{
		base:   repo.NewTree(),
		trees:  []*repo.Tree{s.working.Tree},
		labels: []string{"working"},
	}
	if sel.baseline != "" {
		t, err := s.opts.Store.FetchTree(ctx, sel.baseline)
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline tree: %w", err)
		}
		sd.base = t
	}
	for _, m := range sel.members {
		t, err := s.opts.Store.FetchTree(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("failed to load tree of %s: %w", m, err)
		}
		sd.trees = append(sd.trees, t)
		sd.labels = append(sd.labels, hash.Short(m, 12))
	}
	return sd, nil
}

// checkObstructions fails when untracked items sit where the result puts an
// entry, or inside a directory the result removes.
func (s *Session) checkObstructions(result map[string]*resolved) error {
	if len(s.working.Untracked) == 0 {
		return nil
	}

	taken := make(map[[2]string]bool)
	for _, r := range result {
		taken[[2]string{r.entry.ParentID, r.entry.Name}] = true
	}

	var errs *multierror.Error
	for _, u := range s.working.Untracked {
		if taken[[2]string{u.ParentID, u.Name}] {
			errs = multierror.Append(errs, fmt.Errorf("%s: would be overwritten", u.Path))
			continue
		}
		if u.ParentID == repo.RootID {
			continue
		}
		if _, ok := result[u.ParentID]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("%s: inside a directory the merge removes", u.Path))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", ErrObstructed, errs.ErrorOrNil())
	}
	return nil
}
