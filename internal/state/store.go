package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/danieljhkim/wcmerge/internal/fsops"
)

// ErrLocked indicates another command holds the working-copy lock.
var ErrLocked = errors.New("working copy is locked by another command")

// StateStore persists the working state.
type StateStore interface {
	// Load returns the working state.
	// Returns os.ErrNotExist if no state was saved yet.
	Load() (*WorkingState, error)

	// Save writes the working state atomically.
	Save(ws *WorkingState) error
}

// FileStateStore implements StateStore with a JSON file.
type FileStateStore struct {
	fs   fsops.FS
	path string
}

// NewFileStateStore creates a FileStateStore writing to path.
func NewFileStateStore(fs fsops.FS, path string) *FileStateStore {
	return &FileStateStore{fs: fs, path: path}
}

// Load reads the working state.
func (s *FileStateStore) Load() (*WorkingState, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read working state: %w", err)
	}

	var ws WorkingState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to unmarshal working state: %w", err)
	}
	if ws.Entries == nil {
		ws.Entries = make(map[string]TrackedEntry)
	}
	if ws.Parents == nil {
		ws.Parents = []string{}
	}
	return &ws, nil
}

// Save writes the working state atomically.
func (s *FileStateStore) Save(ws *WorkingState) error {
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal working state: %w", err)
	}

	if err := s.fs.AtomicWrite(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write working state: %w", err)
	}
	return nil
}

// Lock is an advisory lock file. Holding it means no other command mutates
// the working copy.
type Lock struct {
	fs   fsops.FS
	path string
}

// NewLock creates a lock at path.
func NewLock(fs fsops.FS, path string) *Lock {
	return &Lock{fs: fs, path: path}
}

// Acquire takes the lock, recording owner in the lock file. The returned
// function releases it.
func (l *Lock) Acquire(owner string) (func() error, error) {
	if err := l.fs.CreateExclusive(l.path, []byte(owner+"\n")); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (remove %s if no command is running)", ErrLocked, l.path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	return func() error {
		if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}
