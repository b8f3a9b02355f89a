package remediation

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/canon/internal/models"
)

// guardPath resolves a project-relative path and rejects it when the lexical
// path or the real location of its deepest existing ancestor lies outside
// the project root. realRoot must already have symlinks evaluated.
func guardPath(root, realRoot, relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(filepath.FromSlash(relPath)) {
		return "", &models.PathSafetyError{Path: relPath, Root: root}
	}

	abs := filepath.Clean(filepath.Join(root, filepath.FromSlash(relPath)))
	if !within(root, abs) {
		return "", &models.PathSafetyError{Path: relPath, Root: root}
	}

	existing := abs
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", &models.PathSafetyError{Path: relPath, Root: root}
	}
	if !within(realRoot, real) {
		return "", &models.PathSafetyError{Path: relPath, Root: root}
	}
	return abs, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
