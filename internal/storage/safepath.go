package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"tunecrate/internal/utils"
)

// ValidateName rejects anything that is not a bare file name. It never
// touches the filesystem.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return utils.NewAccessDeniedError("invalid stored name", nil)
	case strings.ContainsAny(name, `/\`):
		return utils.NewAccessDeniedError("stored name must not contain a path separator", nil)
	case strings.Contains(name, ".."):
		return utils.NewAccessDeniedError("stored name must not contain '..'", nil)
	case strings.ContainsRune(name, 0):
		return utils.NewAccessDeniedError("stored name must not contain NUL", nil)
	}
	return nil
}

// SafeJoin resolves name under root and returns the canonical path. Root and
// candidate are both resolved to their symlink-free form and the candidate
// must be a strict descendant of the root. The check runs on every call.
func SafeJoin(root, name string) (string, error) {
	_, resolved, err := locate(root, name)
	return resolved, err
}

// locate validates name under root and returns both the directory entry the
// name denotes and what it resolves to. The two differ only for a symlink,
// whose target must stay inside the root as well.
func locate(root, name string) (entry, resolved string, err error) {
	if err := ValidateName(name); err != nil {
		return "", "", err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", utils.NewGenericError("failed to resolve storage root", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", "", utils.NewGenericError("failed to canonicalize storage root", err)
	}

	candidate := filepath.Join(realRoot, name)
	realParent, err := filepath.EvalSymlinks(filepath.Dir(candidate))
	if err != nil {
		return "", "", utils.NewGenericError("failed to canonicalize storage path", err)
	}
	entry = filepath.Join(realParent, filepath.Base(candidate))
	resolved = entry

	// A symlink inside the root must not point outside of it
	if info, err := os.Lstat(entry); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(entry)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", "", utils.NewAccessDeniedError("stored name resolves to a dangling link", err)
			}
			return "", "", utils.NewGenericError("failed to canonicalize storage path", err)
		}
		resolved = target
	}

	if !isDescendant(realRoot, entry) || !isDescendant(realRoot, resolved) {
		return "", "", utils.NewAccessDeniedError("stored name resolves outside the storage root", nil)
	}

	return entry, resolved, nil
}

func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
