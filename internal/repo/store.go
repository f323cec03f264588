package repo

import (
	"context"
	"fmt"
	"time"
)

// Graph is the read side of the version graph used by ancestry queries and
// the graph walker.
type Graph interface {
	// FetchNode returns the frozen node with the given id.
	FetchNode(ctx context.Context, id string) (*Node, error)

	// FetchLeaves returns the ids of every node in the graph that has no children.
	FetchLeaves(ctx context.Context, graphID string) ([]string, error)
}

// Store is the full repository: version graph plus content storage.
type Store interface {
	Graph

	// FetchTree returns the tree recorded by a node.
	FetchTree(ctx context.Context, nodeID string) (*Tree, error)

	// ReadBlob returns the bytes of a blob.
	ReadBlob(ctx context.Context, id string) ([]byte, error)

	// PutBlob stores bytes and returns their content id.
	PutBlob(ctx context.Context, data []byte) (string, error)

	// PutNode stores a frozen node whose parents are already stored.
	PutNode(ctx context.Context, n *Node) error

	// ResolvePrefix expands a unique id prefix within a graph.
	ResolvePrefix(ctx context.Context, graphID, prefix string) (string, error)
}

// CommitRequest describes a new version to record.
type CommitRequest struct {
	GraphID string
	Parents []string
	Tree    *Tree
	Message string
	Time    time.Time
}

// Commit stores the tree and a new node on top of the given parents and
// returns the frozen node.
func Commit(ctx context.Context, s Store, req CommitRequest) (*Node, error) {
	generation := 1
	for _, pid := range req.Parents {
		parent, err := s.FetchNode(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch parent %s: %w", pid, err)
		}
		if parent.GraphID() != req.GraphID {
			return nil, fmt.Errorf("parent %s belongs to graph %s, not %s", pid, parent.GraphID(), req.GraphID)
		}
		if parent.Generation()+1 > generation {
			generation = parent.Generation() + 1
		}
	}

	data, err := req.Tree.Encode()
	if err != nil {
		return nil, err
	}
	treeID, err := s.PutBlob(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store tree: %w", err)
	}

	n := NewNode(req.GraphID)
	if err := n.SetGeneration(generation); err != nil {
		return nil, err
	}
	for _, pid := range req.Parents {
		if err := n.AddParent(pid); err != nil {
			return nil, err
		}
	}
	if err := n.SetTree(treeID); err != nil {
		return nil, err
	}
	if err := n.SetMessage(req.Message); err != nil {
		return nil, err
	}
	if err := n.SetTime(req.Time); err != nil {
		return nil, err
	}
	if err := n.Freeze(); err != nil {
		return nil, err
	}

	if err := s.PutNode(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store node: %w", err)
	}
	return n, nil
}

// fetchTree is the shared FetchTree implementation.
func fetchTree(ctx context.Context, s Store, nodeID string) (*Tree, error) {
	n, err := s.FetchNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadBlob(ctx, n.TreeID())
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", nodeID, err)
	}
	return DecodeTree(data)
}
