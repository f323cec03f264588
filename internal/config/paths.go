// Package config manages wcmerge configuration and working-copy paths.
//
// A working copy is a directory containing a .wcmerge/ metadata directory.
// Commands find it by walking up from the current directory; WCMERGE_ROOT
// overrides the search. Settings are read from .wcmerge/config.yaml and
// WCMERGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MetaDirName is the name of the metadata directory at the working root.
const MetaDirName = ".wcmerge"

// ErrNotWorkingCopy indicates no .wcmerge directory was found.
var ErrNotWorkingCopy = errors.New("not inside a wcmerge working copy (run 'wcmerge init')")

// Paths contains the filesystem paths of one working copy.
type Paths struct {
	// Root is the working directory root
	Root string

	// Meta is the metadata directory (Root/.wcmerge)
	Meta string

	// DB is the repository database
	DB string

	// State is the working state file
	State string

	// Lock is the advisory lock file
	Lock string

	// Parking is the directory holding per-session parking lots
	Parking string

	// Config is the settings file
	Config string

	// Log is the log file
	Log string
}

// PathsAt returns the paths of a working copy rooted at root.
func PathsAt(root string) *Paths {
	meta := filepath.Join(root, MetaDirName)
	return &Paths{
		Root:    root,
		Meta:    meta,
		DB:      filepath.Join(meta, "repo.db"),
		State:   filepath.Join(meta, "state.json"),
		Lock:    filepath.Join(meta, "lock"),
		Parking: filepath.Join(meta, "parking"),
		Config:  filepath.Join(meta, "config.yaml"),
		Log:     filepath.Join(meta, "wcmerge.log"),
	}
}

// Discover finds the working copy containing dir.
// WCMERGE_ROOT, when set, is used as the root without searching.
func Discover(dir string) (*Paths, error) {
	if root := os.Getenv("WCMERGE_ROOT"); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve WCMERGE_ROOT: %w", err)
		}
		return PathsAt(abs), nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for cur := abs; ; {
		info, err := os.Stat(filepath.Join(cur, MetaDirName))
		if err == nil && info.IsDir() {
			return PathsAt(cur), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, ErrNotWorkingCopy
		}
		cur = parent
	}
}

// RelParkingLot returns the parking lot of a session relative to Root.
func (p *Paths) RelParkingLot(session string) string {
	return filepath.ToSlash(filepath.Join(MetaDirName, "parking", session))
}

// EnsureDirectories creates the metadata directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.Meta, p.Parking} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
