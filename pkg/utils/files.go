package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscapesRoot is returned when a path resolves outside its base directory.
var ErrPathEscapesRoot = errors.New("path escapes base directory")

// ResolveWithin joins path onto baseDir and ensures the cleaned result
// stays inside baseDir.
func ResolveWithin(path string, baseDir string) (string, error) {
	base := filepath.Clean(baseDir)
	resolved := filepath.Clean(filepath.Join(base, path))

	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}
	return resolved, nil
}
