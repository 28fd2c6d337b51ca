package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a candidate path resolves outside its
// confining root.
var ErrPathEscape = errors.New("security: path escapes confinement root")

// ConfinePath resolves candidate relative to root and verifies the
// result stays within root, rejecting ".." traversal and symlink-free
// absolute escapes (spec.md §4.14's workspace confinement, the same
// filepath.Clean-plus-prefix-check idiom the teacher uses for agent
// workspace roots). Returns the cleaned absolute path on success.
func ConfinePath(root, candidate string) (string, error) {
	cleanRoot := filepath.Clean(root)
	var joined string
	if filepath.IsAbs(candidate) {
		joined = filepath.Clean(candidate)
	} else {
		joined = filepath.Clean(filepath.Join(cleanRoot, candidate))
	}
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, candidate)
	}
	return joined, nil
}
