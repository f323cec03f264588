// Package repo holds the version graph and content storage.
//
// A repository is a set of immutable version nodes (changesets) linked by
// parent edges, plus a content-addressed blob store holding file bytes and
// serialized trees. Each node records its generation: 1 for a root, otherwise
// one more than the deepest parent, so every edge strictly increases
// generation. The ancestry and walker packages rely on that invariant.
//
// Key components:
//   - Node: frozen version descriptor
//   - Tree / Entry: the versioned file hierarchy keyed by entry identity
//   - Store: storage interface, implemented by MemStore and SQLStore
//   - CachedStore: read-through LRU cache of nodes
package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danieljhkim/wcmerge/internal/hash"
)

var (
	// ErrNotFound indicates an unknown node, blob or tree.
	ErrNotFound = errors.New("not found")

	// ErrFrozen indicates an attempt to mutate a frozen node.
	ErrFrozen = errors.New("node is frozen")

	// ErrAmbiguous indicates a short id matching more than one node.
	ErrAmbiguous = errors.New("ambiguous version id")
)

// Node is one version in the graph. Build it with NewNode and the setters,
// then call Freeze; after that every setter fails with ErrFrozen.
type Node struct {
	id         string
	graphID    string
	generation int
	parents    []string
	treeID     string
	message    string
	time       time.Time
	frozen     bool
}

// NewNode starts building a node in the given graph.
func NewNode(graphID string) *Node {
	return &Node{graphID: graphID}
}

func (n *Node) mutable() error {
	if n.frozen {
		return fmt.Errorf("node %s: %w", n.id, ErrFrozen)
	}
	return nil
}

// SetID sets an explicit id, used when loading stored nodes.
func (n *Node) SetID(id string) error {
	if err := n.mutable(); err != nil {
		return err
	}
	n.id = id
	return nil
}

// SetGeneration sets the node's generation.
func (n *Node) SetGeneration(g int) error {
	if err := n.mutable(); err != nil {
		return err
	}
	if g < 1 {
		return fmt.Errorf("invalid generation %d", g)
	}
	n.generation = g
	return nil
}

// AddParent appends a parent id.
func (n *Node) AddParent(id string) error {
	if err := n.mutable(); err != nil {
		return err
	}
	for _, p := range n.parents {
		if p == id {
			return fmt.Errorf("duplicate parent %s", id)
		}
	}
	n.parents = append(n.parents, id)
	return nil
}

// SetTree sets the id of the node's serialized tree.
func (n *Node) SetTree(id string) error {
	if err := n.mutable(); err != nil {
		return err
	}
	n.treeID = id
	return nil
}

// SetMessage sets the commit message.
func (n *Node) SetMessage(msg string) error {
	if err := n.mutable(); err != nil {
		return err
	}
	n.message = msg
	return nil
}

// SetTime sets the commit timestamp.
func (n *Node) SetTime(t time.Time) error {
	if err := n.mutable(); err != nil {
		return err
	}
	n.time = t.UTC()
	return nil
}

// Freeze makes the node immutable. If no id was set, the id becomes the
// content hash of the node header.
func (n *Node) Freeze() error {
	if n.frozen {
		return nil
	}
	if n.generation == 0 {
		return fmt.Errorf("cannot freeze node without generation")
	}
	if n.id == "" {
		n.id = n.headerHash()
	}
	n.frozen = true
	return nil
}

type nodeHeader struct {
	Graph      string    `json:"graph"`
	Generation int       `json:"generation"`
	Parents    []string  `json:"parents"`
	Tree       string    `json:"tree"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

func (n *Node) headerHash() string {
	data, _ := json.Marshal(nodeHeader{
		Graph:      n.graphID,
		Generation: n.generation,
		Parents:    n.parents,
		Tree:       n.treeID,
		Message:    n.message,
		Time:       n.time,
	})
	return hash.Sum(data)
}

// ID returns the node id.
func (n *Node) ID() string { return n.id }

// GraphID returns the id of the graph (repository) the node belongs to.
func (n *Node) GraphID() string { return n.graphID }

// Generation returns the node's depth from the root.
func (n *Node) Generation() int { return n.generation }

// TreeID returns the id of the node's tree blob.
func (n *Node) TreeID() string { return n.treeID }

// Message returns the commit message.
func (n *Node) Message() string { return n.message }

// Time returns the commit timestamp.
func (n *Node) Time() time.Time { return n.time }

// Frozen reports whether the node is immutable.
func (n *Node) Frozen() bool { return n.frozen }

// Parents returns a copy of the parent ids.
func (n *Node) Parents() []string {
	out := make([]string, len(n.parents))
	copy(out, n.parents)
	return out
}
