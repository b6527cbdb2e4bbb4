// Package security validates user-supplied filesystem paths.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a path resolves outside its allowed root.
var ErrPathEscape = errors.New("path escapes allowed directory")

// canonical returns the absolute, symlink-resolved form of path. When path
// does not exist yet, the nearest existing ancestor is resolved and the
// remaining components are re-appended, so a new file below a symlinked
// directory is judged by where it would really land.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory reports an error wrapping ErrPathEscape when
// filePath, after resolving "..", symlinks and relative components, lies
// outside root. root itself must exist.
func ValidatePathWithinDirectory(filePath, root string) error {
	path, err := canonical(filePath)
	if err != nil {
		return err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}

	rel, err := filepath.Rel(canonRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s: %w %s", filePath, ErrPathEscape, root)
	}
	return nil
}

// ValidatePathWithinAllowedDirs accepts filePath if it lies within any of
// roots.
func ValidatePathWithinAllowedDirs(filePath string, roots []string) error {
	if len(roots) == 0 {
		return errors.New("no allowed directories specified")
	}
	for _, root := range roots {
		if ValidatePathWithinDirectory(filePath, root) == nil {
			return nil
		}
	}
	return fmt.Errorf("%s: %w (allowed: %v)", filePath, ErrPathEscape, roots)
}

// ValidateOutputPath accepts paths under the working directory or the
// system temp directory. Tools that write reports use it for their output
// flags.
func ValidateOutputPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	return ValidatePathWithinAllowedDirs(filePath, []string{cwd, os.TempDir()})
}
