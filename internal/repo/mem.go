package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danieljhkim/wcmerge/internal/hash"
)

// MemStore is an in-memory Store used by tests and dry-run tooling.
type MemStore struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children map[string]int
	blobs    map[string][]byte

	// Fetches counts FetchNode calls.
	Fetches int
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:    make(map[string]*Node),
		children: make(map[string]int),
		blobs:    make(map[string][]byte),
	}
}

// FetchNode returns the node with the given id.
func (s *MemStore) FetchNode(ctx context.Context, id string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches++
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n, nil
}

// FetchLeaves returns the childless nodes of a graph, sorted.
func (s *MemStore) FetchLeaves(ctx context.Context, graphID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var leaves []string
	for id, n := range s.nodes {
		if n.GraphID() == graphID && s.children[id] == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves, nil
}

// FetchTree returns the tree recorded by a node.
func (s *MemStore) FetchTree(ctx context.Context, nodeID string) (*Tree, error) {
	return fetchTree(ctx, s, nodeID)
}

// ReadBlob returns a copy of a blob's bytes.
func (s *MemStore) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PutBlob stores bytes under their content id.
func (s *MemStore) PutBlob(ctx context.Context, data []byte) (string, error) {
	id := hash.Sum(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.blobs[id] = stored
	}
	return id, nil
}

// PutNode stores a frozen node.
func (s *MemStore) PutNode(ctx context.Context, n *Node) error {
	if !n.Frozen() {
		return fmt.Errorf("refusing to store unfrozen node")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.ID()]; ok {
		return nil
	}
	for _, p := range n.Parents() {
		if _, ok := s.nodes[p]; !ok {
			return fmt.Errorf("parent %s: %w", p, ErrNotFound)
		}
	}
	s.nodes[n.ID()] = n
	for _, p := range n.Parents() {
		s.children[p]++
	}
	return nil
}

// ResolvePrefix expands a unique id prefix.
func (s *MemStore) ResolvePrefix(ctx context.Context, graphID, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var match []string
	for id, n := range s.nodes {
		if n.GraphID() == graphID && strings.HasPrefix(id, prefix) {
			match = append(match, id)
		}
	}
	switch len(match) {
	case 0:
		return "", fmt.Errorf("version %s: %w", prefix, ErrNotFound)
	case 1:
		return match[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}
