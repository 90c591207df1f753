package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for paths that resolve outside their root.
var ErrPathTraversal = errors.New("path escapes root")

// ErrEmptyPath is returned for blank paths.
var ErrEmptyPath = errors.New("path cannot be empty")

// Within resolves rel against root and returns the cleaned result. Absolute
// paths are accepted when they already lie under root.
func Within(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	path := filepath.Clean(rel)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if !IsWithin(root, path) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return path, nil
}

// IsWithin reports whether path is root or lies below it. Both are compared
// lexically after cleaning; symlinks are not followed.
func IsWithin(root, path string) bool {
	r, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}
