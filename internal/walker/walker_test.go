package walker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/repo/repotest"
	"github.com/danieljhkim/wcmerge/internal/walker"
)

func collect(t *testing.T, g repo.Graph, starts ...string) []*repo.Node {
	t.Helper()
	var visited []*repo.Node
	err := walker.New(g).Walk(context.Background(), starts, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		visited = append(visited, n)
		return walker.Continue, nil
	})
	require.NoError(t, err)
	return visited
}

func TestWalk_DiamondVisitsOnce(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()
	left := b.Node(root)
	right := b.Node(root)
	top := b.Node(left, right)

	visited := collect(t, b.Store, top)

	ids := make([]string, len(visited))
	for i, n := range visited {
		ids[i] = n.ID()
	}
	assert.ElementsMatch(t, []string{root, left, right, top}, ids)
	assert.Equal(t, top, ids[0])
	assert.Equal(t, root, ids[3])
}

func TestWalk_DeepestFirst(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()
	a1 := b.Node(root)
	a2 := b.Node(a1)
	a3 := b.Node(a2)
	b1 := b.Node(root)

	visited := collect(t, b.Store, a3, b1)

	last := visited[0].Generation()
	for _, n := range visited[1:] {
		assert.LessOrEqual(t, n.Generation(), last)
		last = n.Generation()
	}
	assert.Len(t, visited, 5)
}

func TestWalk_SharedAncestorsManyStarts(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()
	mid := b.Node(root)
	var tips []string
	for i := 0; i < 5; i++ {
		tips = append(tips, b.Node(mid))
	}
	// duplicate starts collapse too
	tips = append(tips, tips[0], mid)

	visited := collect(t, b.Store, tips...)
	assert.Len(t, visited, 7)

	seen := map[string]int{}
	for _, n := range visited {
		seen[n.ID()]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "node %s visited more than once", id)
	}
}

func TestWalk_PruneAndStop(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()
	a := b.Node(root)
	c := b.Node(a)

	var pruned []string
	err := walker.New(b.Store).Walk(context.Background(), []string{c}, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		pruned = append(pruned, n.ID())
		if n.ID() == a {
			return walker.Prune, nil
		}
		return walker.Continue, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{c, a}, pruned)

	w := walker.New(b.Store)
	err = w.Walk(context.Background(), []string{c}, func(n *repo.Node, _ walker.Cache) (walker.Action, error) {
		return walker.Stop, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Visited)
}

func TestWalk_CacheHoldsQueuedParents(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()
	left := b.Node(root)
	right := b.Node(root)
	top := b.Node(left, right)

	siblings := 0
	err := walker.New(b.Store).Walk(context.Background(), []string{top}, func(n *repo.Node, cache walker.Cache) (walker.Action, error) {
		_, self := cache[n.ID()]
		assert.True(t, self, "visited node is cached until processed")
		if n.ID() == left || n.ID() == right {
			siblings++
			if siblings == 1 {
				_, l := cache[left]
				_, r := cache[right]
				assert.True(t, l && r, "both parents queued together")
			}
		}
		return walker.Continue, nil
	})
	require.NoError(t, err)
}

func TestWalk_Errors(t *testing.T) {
	b := repotest.New(t)
	root := b.Node()

	err := walker.New(b.Store).Walk(context.Background(), []string{"missing"}, nil)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	boom := errors.New("boom")
	err = walker.New(b.Store).Walk(context.Background(), []string{root}, func(*repo.Node, walker.Cache) (walker.Action, error) {
		return walker.Continue, boom
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = walker.New(b.Store).Walk(ctx, []string{root}, func(*repo.Node, walker.Cache) (walker.Action, error) {
		return walker.Continue, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
