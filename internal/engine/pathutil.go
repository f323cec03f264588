package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/wcmerge/internal/config"
)

// resolveToRootRelative resolves a user-provided path (absolute, relative, or
// containing "..") to a clean slash-separated path relative to the working
// root. The root itself resolves to "". Paths outside the working copy or
// inside the metadata directory are rejected.
func resolveToRootRelative(userPath, cwd, root string) (string, error) {
	var absPath string
	if filepath.IsAbs(userPath) {
		absPath = userPath
	} else {
		absPath = filepath.Join(cwd, userPath)
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	relPath, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute root-relative path for %q: %w", userPath, err)
	}

	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves to %q which is outside the working copy", userPath, absPath)
	}
	if relPath == "." {
		return "", nil
	}

	relPath = filepath.ToSlash(relPath)
	if relPath == config.MetaDirName || strings.HasPrefix(relPath, config.MetaDirName+"/") {
		return "", fmt.Errorf("path %q is inside the %s metadata directory", userPath, config.MetaDirName)
	}
	return relPath, nil
}
