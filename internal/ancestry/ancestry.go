// Package ancestry answers relationship questions about versions: whether one
// is an ancestor of another, which leaves descend from a version, and the
// deepest common ancestor of a set of versions.
package ancestry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/walker"
)

// ErrNoLeaf indicates a node with no descendant leaf. Every node has one in a
// consistent graph, so this is a fatal fault.
var ErrNoLeaf = errors.New("no descendant leaf found")

// Relationship classifies v1 relative to v2.
type Relationship int

const (
	Same Relationship = iota
	// Ancestor means v1 is an ancestor of v2.
	Ancestor
	// Descendant means v1 is a descendant of v2.
	Descendant
	Peer
	Unrelated
)

func (r Relationship) String() string {
	switch r {
	case Same:
		return "same"
	case Ancestor:
		return "ancestor"
	case Descendant:
		return "descendant"
	case Peer:
		return "peer"
	case Unrelated:
		return "unrelated"
	default:
		return fmt.Sprintf("relationship(%d)", int(r))
	}
}

// Mirror returns the relationship seen from the other side.
func Mirror(r Relationship) Relationship {
	switch r {
	case Ancestor:
		return Descendant
	case Descendant:
		return Ancestor
	default:
		return r
	}
}

// LeafStatus describes a FindDescendantLeaves result.
type LeafStatus int

const (
	// IsLeaf means the start node is itself a leaf.
	IsLeaf LeafStatus = iota
	// Unique means exactly one leaf descends from the start node.
	Unique
	// Multiple means more than one leaf descends from the start node.
	Multiple
)

func (s LeafStatus) String() string {
	switch s {
	case IsLeaf:
		return "is-leaf"
	case Unique:
		return "unique"
	case Multiple:
		return "multiple"
	default:
		return fmt.Sprintf("leaf-status(%d)", int(s))
	}
}

// LeafResult is the outcome of FindDescendantLeaves. Leaves is nil when the
// search stopped early on a second match.
type LeafResult struct {
	Status LeafStatus
	Leaves []string
}

// Query runs ancestry queries against a graph.
type Query struct {
	graph repo.Graph
	log   *zap.Logger
}

// New creates a Query. Pass a repo.CachedStore as graph to share fetched
// nodes between queries.
func New(graph repo.Graph, log *zap.Logger) *Query {
	if log == nil {
		log = zap.NewNop()
	}
	return &Query{graph: graph, log: log}
}

// Relationship classifies v1 relative to v2.
func (q *Query) Relationship(ctx context.Context, v1, v2 string) (Relationship, error) {
	if v1 == v2 {
		return Same, nil
	}

	n1, err := q.graph.FetchNode(ctx, v1)
	if err != nil {
		return 0, err
	}
	n2, err := q.graph.FetchNode(ctx, v2)
	if err != nil {
		return 0, err
	}

	if n1.GraphID() != n2.GraphID() {
		q.log.Warn("relationship across graphs",
			zap.String("v1", v1), zap.String("graph1", n1.GraphID()),
			zap.String("v2", v2), zap.String("graph2", n2.GraphID()))
		return Unrelated, nil
	}
	if n1.Generation() == n2.Generation() {
		return Peer, nil
	}

	deep, shallow := n1, n2
	if n2.Generation() > n1.Generation() {
		deep, shallow = n2, n1
	}

	found, err := q.reaches(ctx, deep, shallow)
	if err != nil {
		return 0, err
	}
	switch {
	case !found:
		return Peer, nil
	case deep == n1:
		return Descendant, nil
	default:
		return Ancestor, nil
	}
}

// reaches walks back from deep no further than shallow's generation.
func (q *Query) reaches(ctx context.Context, deep, shallow *repo.Node) (bool, error) {
	found := false
	limit := shallow.Generation()
	err := walker.New(q.graph).Walk(ctx, []string{deep.ID()}, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		if n.ID() == shallow.ID() {
			found = true
			return walker.Stop, nil
		}
		if n.Generation() <= limit {
			return walker.Prune, nil
		}
		return walker.Continue, nil
	})
	return found, err
}

// FindDescendantLeaves returns the leaves descending from start. With
// stopIfMultiple set the search ends at the second match.
func (q *Query) FindDescendantLeaves(ctx context.Context, start string, stopIfMultiple bool) (LeafResult, error) {
	n, err := q.graph.FetchNode(ctx, start)
	if err != nil {
		return LeafResult{}, err
	}
	leaves, err := q.graph.FetchLeaves(ctx, n.GraphID())
	if err != nil {
		return LeafResult{}, fmt.Errorf("failed to fetch leaves: %w", err)
	}
	if slices.Contains(leaves, start) {
		return LeafResult{Status: IsLeaf, Leaves: []string{start}}, nil
	}

	var found []string
	for _, leaf := range leaves {
		rel, err := q.Relationship(ctx, start, leaf)
		if err != nil {
			return LeafResult{}, err
		}
		if rel != Ancestor {
			continue
		}
		found = append(found, leaf)
		if stopIfMultiple && len(found) > 1 {
			return LeafResult{Status: Multiple}, nil
		}
	}

	switch len(found) {
	case 0:
		q.log.Error("node has no descendant leaf", zap.String("node", start))
		return LeafResult{}, fmt.Errorf("node %s: %w", start, ErrNoLeaf)
	case 1:
		return LeafResult{Status: Unique, Leaves: found}, nil
	default:
		return LeafResult{Status: Multiple, Leaves: found}, nil
	}
}

// maxCommonInputs bounds CommonAncestor inputs to the width of a reach mask.
const maxCommonInputs = 64

// CommonAncestor returns the deepest node reachable from every id, or "" when
// the ids share no ancestor. Ties at equal generation go to the smaller id.
func (q *Query) CommonAncestor(ctx context.Context, ids ...string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("common ancestor needs at least one version")
	}
	if len(ids) > maxCommonInputs {
		return "", fmt.Errorf("common ancestor supports at most %d versions, got %d", maxCommonInputs, len(ids))
	}

	masks := make(map[string]uint64)
	for i, id := range ids {
		masks[id] |= 1 << uint(i)
	}
	full := uint64(1)<<uint(len(ids)) - 1
	if len(ids) == maxCommonInputs {
		full = ^uint64(0)
	}

	result := ""
	err := walker.New(q.graph).Walk(ctx, ids, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		m := masks[n.ID()]
		if m == full {
			result = n.ID()
			return walker.Stop, nil
		}
		for _, p := range n.Parents() {
			masks[p] |= m
		}
		delete(masks, n.ID())
		return walker.Continue, nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
