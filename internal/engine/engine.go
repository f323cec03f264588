// Package engine provides the operations behind wcmerge commands.
//
// The engine sits between the CLI and the domain packages. It loads and saves
// the working state, scans the working directory, runs merge sessions and
// executes their plans against the disk.
//
// Key components:
//   - Engine: main orchestrator called by the CLI
//   - ComputeMerge/ApplyMerge: merge computation and plan execution
//   - Executor: applies plan steps to the working directory
//   - Add/Commit/Status: the working-copy lifecycle around merges
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danieljhkim/wcmerge/internal/clock"
	"github.com/danieljhkim/wcmerge/internal/config"
	"github.com/danieljhkim/wcmerge/internal/fsops"
	"github.com/danieljhkim/wcmerge/internal/hash"
	"github.com/danieljhkim/wcmerge/internal/repo"
	"github.com/danieljhkim/wcmerge/internal/state"
)

// Engine orchestrates all wcmerge operations on one working copy.
// It is the main API surface called by the CLI.
type Engine struct {
	store      repo.Store
	stateStore state.StateStore
	lock       *state.Lock
	fs         fsops.FS
	hasher     hash.Hasher
	clock      clock.Clock
	paths      config.Paths
	settings   config.Settings
	log        *zap.Logger
}

// New creates a new Engine with the given dependencies.
func New(
	store repo.Store,
	stateStore state.StateStore,
	lock *state.Lock,
	fs fsops.FS,
	hasher hash.Hasher,
	clk clock.Clock,
	paths config.Paths,
	settings config.Settings,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:      store,
		stateStore: stateStore,
		lock:       lock,
		fs:         fs,
		hasher:     hasher,
		clock:      clk,
		paths:      paths,
		settings:   settings,
		log:        log,
	}
}

// Root returns the working directory root.
func (e *Engine) Root() string {
	return e.paths.Root
}

// loadState returns the working state or ErrNotInitialized.
func (e *Engine) loadState() (*state.WorkingState, error) {
	ws, err := e.stateStore.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to load working state: %w", err)
	}
	return ws, nil
}

// saveState stamps and writes the working state.
func (e *Engine) saveState(ws *state.WorkingState) error {
	ws.Updated = e.clock.Now()
	if err := e.stateStore.Save(ws); err != nil {
		return fmt.Errorf("failed to save working state: %w", err)
	}
	return nil
}

// withLock runs fn while holding the working-copy lock.
func (e *Engine) withLock(owner string, fn func() error) (err error) {
	release, err := e.lock.Acquire(owner)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

// abs converts a root-relative slash path to an absolute path.
func (e *Engine) abs(rel string) string {
	if rel == "" {
		return e.paths.Root
	}
	return filepath.Join(e.paths.Root, filepath.FromSlash(rel))
}
