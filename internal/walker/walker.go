// Package walker traverses the parent edges of the version graph.
//
// Nodes are visited deepest-first: the queue is ordered by descending
// generation, then by id. Because every edge strictly increases generation,
// a node is only visited after every queued descendant of it has been
// visited, which lets callbacks accumulate per-node state (for example reach
// masks) before the node itself comes up. No node is visited twice.
package walker

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// Action tells the walker what to do after a callback.
type Action int

const (
	// Continue expands the visited node's parents.
	Continue Action = iota
	// Prune skips the visited node's parents; other branches continue.
	Prune
	// Stop ends the walk.
	Stop
)

// Cache holds nodes that are queued but not yet visited.
type Cache map[string]*repo.Node

// Func is called once per visited node.
type Func func(n *repo.Node, cache Cache) (Action, error)

// Walker walks a graph. A Walker may be reused; each Walk starts fresh.
type Walker struct {
	graph repo.Graph

	// Visited counts nodes visited by the last walk.
	Visited int
}

// New creates a Walker over graph.
func New(graph repo.Graph) *Walker {
	return &Walker{graph: graph}
}

// Walk visits every node reachable from starts through parent edges, calling
// fn for each until fn returns Stop or the graph is exhausted.
func (w *Walker) Walk(ctx context.Context, starts []string, fn Func) error {
	w.Visited = 0
	q := &queue{}
	cache := make(Cache)
	seen := make(map[string]bool)

	enqueue := func(id string) error {
		if seen[id] {
			return nil
		}
		n, err := w.graph.FetchNode(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch node %s: %w", id, err)
		}
		seen[id] = true
		cache[id] = n
		heap.Push(q, n)
		return nil
	}

	for _, id := range starts {
		if err := enqueue(id); err != nil {
			return err
		}
	}

	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := heap.Pop(q).(*repo.Node)
		w.Visited++
		action, err := fn(n, cache)
		if err != nil {
			return err
		}

		switch action {
		case Stop:
			return nil
		case Continue:
			for _, p := range n.Parents() {
				if err := enqueue(p); err != nil {
					return err
				}
			}
		}
		delete(cache, n.ID())
	}
	return nil
}

// queue is a max-heap on generation with ascending id as tie-break.
type queue []*repo.Node

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].Generation() != q[j].Generation() {
		return q[i].Generation() > q[j].Generation()
	}
	return q[i].ID() < q[j].ID()
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(*repo.Node)) }

func (q *queue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return n
}
