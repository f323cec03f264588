package repo

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"sort"

	"github.com/google/uuid"
)

// RootID is the identity of the root directory of every tree.
var RootID = uuid.Nil.String()

// Kind is the type of a versioned entry.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
)

// NewEntryID allocates a fresh entry identity.
func NewEntryID() string {
	return uuid.NewString()
}

// Entry is one versioned file, directory or symlink.
type Entry struct {
	// ID is the entry identity; it survives renames and moves
	ID string `json:"id" yaml:"id"`

	// ParentID is the identity of the containing directory
	ParentID string `json:"parent" yaml:"parent"`

	// Name is the entry name inside its parent
	Name string `json:"name" yaml:"name"`

	Kind Kind `json:"kind" yaml:"kind"`

	// ContentID is the blob id of a file's bytes
	ContentID string `json:"content,omitempty" yaml:"content,omitempty"`

	// Target is a symlink's target
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	Exec   bool              `json:"exec,omitempty" yaml:"exec,omitempty"`
	Xattrs map[string]string `json:"xattrs,omitempty" yaml:"xattrs,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDir }

// SameLocation reports whether both entries sit at the same parent and name.
func (e Entry) SameLocation(o Entry) bool {
	return e.ParentID == o.ParentID && e.Name == o.Name
}

// SameContent reports whether both entries have the same kind and payload.
func (e Entry) SameContent(o Entry) bool {
	return e.Kind == o.Kind && e.ContentID == o.ContentID && e.Target == o.Target
}

// SameAttrs reports whether both entries carry the same attributes.
func (e Entry) SameAttrs(o Entry) bool {
	if e.Exec != o.Exec || len(e.Xattrs) != len(o.Xattrs) {
		return false
	}
	return maps.Equal(e.Xattrs, o.Xattrs)
}

// Equal reports whether both entries are identical in every field.
func (e Entry) Equal(o Entry) bool {
	return e.ID == o.ID && e.SameLocation(o) && e.SameContent(o) && e.SameAttrs(o)
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	if e.Xattrs != nil {
		e.Xattrs = maps.Clone(e.Xattrs)
	}
	return e
}

// Tree is a versioned hierarchy keyed by entry identity. It always contains
// the root directory.
type Tree struct {
	entries map[string]Entry
}

// NewTree returns a tree holding only the root directory.
func NewTree() *Tree {
	t := &Tree{entries: make(map[string]Entry)}
	t.entries[RootID] = Entry{ID: RootID, Kind: KindDir}
	return t
}

// Get returns the entry with the given identity.
func (t *Tree) Get(id string) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Has reports whether the identity is present.
func (t *Tree) Has(id string) bool {
	_, ok := t.entries[id]
	return ok
}

// Put inserts or replaces an entry.
func (t *Tree) Put(e Entry) {
	t.entries[e.ID] = e
}

// Delete removes an entry. The root cannot be removed.
func (t *Tree) Delete(id string) {
	if id == RootID {
		return
	}
	delete(t.entries, id)
}

// Len returns the number of entries including the root.
func (t *Tree) Len() int { return len(t.entries) }

// IDs returns all identities, sorted.
func (t *Tree) IDs() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Children returns the entries whose parent is the given directory, sorted by name.
func (t *Tree) Children(parentID string) []Entry {
	var out []Entry
	for id, e := range t.entries {
		if id != RootID && e.ParentID == parentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds the entry with the given name inside a directory.
func (t *Tree) Lookup(parentID, name string) (Entry, bool) {
	for id, e := range t.entries {
		if id != RootID && e.ParentID == parentID && e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Path returns the slash-separated path of an entry relative to the root.
// The root's path is "".
func (t *Tree) Path(id string) (string, error) {
	var parts []string
	seen := make(map[string]bool)
	for cur := id; cur != RootID; {
		if seen[cur] {
			return "", fmt.Errorf("path cycle at entry %s", cur)
		}
		seen[cur] = true
		e, ok := t.entries[cur]
		if !ok {
			return "", fmt.Errorf("entry %s: %w", cur, ErrNotFound)
		}
		parts = append(parts, e.Name)
		cur = e.ParentID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return path.Join(parts...), nil
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	c := &Tree{entries: make(map[string]Entry, len(t.entries))}
	for id, e := range t.entries {
		c.entries[id] = e.Clone()
	}
	return c
}

type treeDoc struct {
	Entries []Entry `json:"entries"`
}

// Encode serializes the tree canonically (entries sorted by id).
func (t *Tree) Encode() ([]byte, error) {
	doc := treeDoc{Entries: make([]Entry, 0, len(t.entries))}
	for _, id := range t.IDs() {
		doc.Entries = append(doc.Entries, t.entries[id])
	}
	return json.Marshal(doc)
}

// DecodeTree parses a serialized tree.
func DecodeTree(data []byte) (*Tree, error) {
	var doc treeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	t := NewTree()
	for _, e := range doc.Entries {
		t.entries[e.ID] = e
	}
	return t, nil
}
