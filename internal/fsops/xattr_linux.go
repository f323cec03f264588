//go:build linux

package fsops

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Xattrs returns the extended attributes of path (symlinks not followed).
func (fs *RealFS) Xattrs(path string) (map[string]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to list xattrs of %s: %w", path, err)
	}
	attrs := map[string]string{}
	if size == 0 {
		return attrs, nil
	}

	buf := make([]byte, size)
	size, err = unix.Llistxattr(path, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to list xattrs of %s: %w", path, err)
	}

	for _, name := range bytes.Split(buf[:size], []byte{0}) {
		if len(name) == 0 {
			continue
		}
		// security.* and system.* are owned by the kernel / LSMs
		if !bytes.HasPrefix(name, []byte("user.")) {
			continue
		}
		value, err := lgetxattr(path, string(name))
		if err != nil {
			return nil, err
		}
		attrs[string(name)] = value
	}
	return attrs, nil
}

func lgetxattr(path, name string) (string, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read xattr %s of %s: %w", name, path, err)
	}
	buf := make([]byte, size)
	size, err = unix.Lgetxattr(path, name, buf)
	if err != nil {
		return "", fmt.Errorf("failed to read xattr %s of %s: %w", name, path, err)
	}
	return string(buf[:size]), nil
}

// SetXattr sets one extended attribute.
func (fs *RealFS) SetXattr(path, name, value string) error {
	if err := unix.Lsetxattr(path, name, []byte(value), 0); err != nil {
		if errors.Is(err, unix.ENOTSUP) {
			return ErrXattrUnsupported
		}
		return fmt.Errorf("failed to set xattr %s on %s: %w", name, path, err)
	}
	return nil
}

// RemoveXattr removes one extended attribute.
func (fs *RealFS) RemoveXattr(path, name string) error {
	if err := unix.Lremovexattr(path, name); err != nil {
		if errors.Is(err, unix.ENODATA) {
			return nil
		}
		return fmt.Errorf("failed to remove xattr %s from %s: %w", name, path, err)
	}
	return nil
}
