package plugins

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape marks a path that would leave the workspace jail. Tools map
// it to the PERMISSION_DENIED result code.
var ErrPathEscape = errors.New("path escapes the workspace")

// SafePath resolves a tool-supplied relative path inside the workspace and
// rejects anything that would land outside it. Absolute paths are refused
// outright; traversal is caught after cleaning the joined path.
func SafePath(workspace, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscape, rel)
	}

	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}

	resolved := filepath.Clean(filepath.Join(root, rel))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	return resolved, nil
}
