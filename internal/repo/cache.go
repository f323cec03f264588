package repo

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore wraps a Store with a read-through LRU cache of nodes. Nodes are
// frozen, so cached values can be shared freely.
type CachedStore struct {
	Store
	nodes *lru.Cache[string, *Node]

	hits   int
	misses int
}

// NewCachedStore creates a CachedStore holding at most size nodes.
func NewCachedStore(s Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Node](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}
	return &CachedStore{Store: s, nodes: cache}, nil
}

// FetchNode returns a cached node or loads it from the underlying store.
func (c *CachedStore) FetchNode(ctx context.Context, id string) (*Node, error) {
	if n, ok := c.nodes.Get(id); ok {
		c.hits++
		return n, nil
	}
	c.misses++
	n, err := c.Store.FetchNode(ctx, id)
	if err != nil {
		return nil, err
	}
	c.nodes.Add(id, n)
	return n, nil
}

// FetchTree resolves the node through the cache.
func (c *CachedStore) FetchTree(ctx context.Context, nodeID string) (*Tree, error) {
	return fetchTree(ctx, c, nodeID)
}

// Stats returns cache hits and misses.
func (c *CachedStore) Stats() (hits, misses int) {
	return c.hits, c.misses
}
