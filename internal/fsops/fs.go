// Package fsops provides the filesystem primitives used by the executor and
// the working-directory scanner. Renames never replace an existing entry and
// file writes are atomic.
package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned by Rename when the destination already exists.
var ErrExists = errors.New("destination already exists")

// ErrXattrUnsupported is returned when extended attributes are not available
// on the current platform.
var ErrXattrUnsupported = errors.New("extended attributes not supported")

// FS provides an abstraction for filesystem operations.
type FS interface {
	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// Readlink reads the target of a symlink.
	Readlink(path string) (string, error)

	// Symlink creates newname as a symbolic link to oldname.
	Symlink(oldname, newname string) error

	// Mkdir creates a single directory.
	Mkdir(path string, perm os.FileMode) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes a file, symlink or empty directory.
	Remove(path string) error

	// Rename moves oldpath to newpath. It fails with ErrExists rather than
	// replacing an existing destination.
	Rename(oldpath, newpath string) error

	// ReadDir lists the names in a directory, sorted.
	ReadDir(path string) ([]string, error)

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// AtomicWrite writes data to path atomically using temp file + rename.
	AtomicWrite(path string, data []byte, perm os.FileMode) error

	// Chmod sets permission bits.
	Chmod(path string, perm os.FileMode) error

	// Xattrs returns the extended attributes of path (symlinks not followed).
	Xattrs(path string) (map[string]string, error)

	// SetXattr sets one extended attribute.
	SetXattr(path, name, value string) error

	// RemoveXattr removes one extended attribute.
	RemoveXattr(path, name string) error

	// CreateExclusive creates path, failing if it already exists.
	CreateExclusive(path string, data []byte) error

	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// ValidateName validates a single entry name.
	ValidateName(name string) error
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

func NewRealFS() *RealFS {
	return &RealFS{}
}

func (fs *RealFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (fs *RealFS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (fs *RealFS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

func (fs *RealFS) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

func (fs *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (fs *RealFS) Remove(path string) error {
	return os.Remove(path)
}

// Rename moves oldpath to newpath without replacing an existing destination.
// os.Rename silently replaces files on POSIX systems, so the destination is
// checked first; the working copy lock makes the check-then-rename safe.
func (fs *RealFS) Rename(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return fmt.Errorf("rename %s -> %s: %w", oldpath, newpath, ErrExists)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat destination: %w", err)
	}
	return os.Rename(oldpath, newpath)
}

// ReadDir lists the names in a directory, sorted.
func (fs *RealFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (fs *RealFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// AtomicWrite writes data to path atomically using temp file + rename.
func (fs *RealFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Create temp file in the same directory as target
	tmpFile, err := os.CreateTemp(dir, ".wcmerge-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

func (fs *RealFS) Chmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

// CreateExclusive creates path, failing if it already exists.
func (fs *RealFS) CreateExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func (fs *RealFS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ValidateName validates a single entry name: it must be non-empty, must not
// be "." or "..", and must not contain a path separator or NUL byte.
func (fs *RealFS) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("invalid name: empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid name: %q is reserved", name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("invalid name %q: must not contain separators", name)
	}
	return nil
}

// ModeFor returns the permission bits used for a regular file.
func ModeFor(exec bool) os.FileMode {
	if exec {
		return 0755
	}
	return 0644
}

// IsExec reports whether any execute bit is set.
func IsExec(mode os.FileMode) bool {
	return mode.Perm()&0111 != 0
}
