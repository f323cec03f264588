//go:build !linux

package fsops

// Xattrs returns an empty set on platforms without xattr support.
func (fs *RealFS) Xattrs(path string) (map[string]string, error) {
	return map[string]string{}, nil
}

// SetXattr is unsupported on this platform.
func (fs *RealFS) SetXattr(path, name, value string) error {
	return ErrXattrUnsupported
}

// RemoveXattr is a no-op on this platform.
func (fs *RealFS) RemoveXattr(path, name string) error {
	return nil
}
