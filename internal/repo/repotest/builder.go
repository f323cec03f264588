// Package repotest builds in-memory version graphs for tests.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/danieljhkim/wcmerge/internal/repo"
)

// GraphID is the graph id used by builders.
const GraphID = "test-graph"

// Builder creates nodes in a MemStore.
type Builder struct {
	t     testing.TB
	Store *repo.MemStore
	now   time.Time
	seq   int
}

// New creates a Builder over an empty MemStore.
func New(t testing.TB) *Builder {
	return &Builder{
		t:     t,
		Store: repo.NewMemStore(),
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Node commits an empty tree on top of parents and returns the node id.
func (b *Builder) Node(parents ...string) string {
	return b.Commit(repo.NewTree(), parents...)
}

// Commit records tree on top of parents and returns the node id.
func (b *Builder) Commit(tree *repo.Tree, parents ...string) string {
	b.t.Helper()
	b.seq++
	b.now = b.now.Add(time.Minute)
	n, err := repo.Commit(context.Background(), b.Store, repo.CommitRequest{
		GraphID: GraphID,
		Parents: parents,
		Tree:    tree,
		Message: fmt.Sprintf("commit %d", b.seq),
		Time:    b.now,
	})
	if err != nil {
		b.t.Fatalf("commit failed: %v", err)
	}
	return n.ID()
}

// Blob stores data and returns its content id.
func (b *Builder) Blob(data string) string {
	b.t.Helper()
	id, err := b.Store.PutBlob(context.Background(), []byte(data))
	if err != nil {
		b.t.Fatalf("put blob failed: %v", err)
	}
	return id
}

// File returns a file entry whose content is stored as a blob.
func (b *Builder) File(id, parentID, name, content string) repo.Entry {
	return repo.Entry{ID: id, ParentID: parentID, Name: name, Kind: repo.KindFile, ContentID: b.Blob(content)}
}

// Dir returns a directory entry.
func Dir(id, parentID, name string) repo.Entry {
	return repo.Entry{ID: id, ParentID: parentID, Name: name, Kind: repo.KindDir}
}

// Tree builds a tree from entries.
func Tree(entries ...repo.Entry) *repo.Tree {
	t := repo.NewTree()
	for _, e := range entries {
		t.Put(e)
	}
	return t
}
