// Package git provides typed access to the git CLI for the operations canon
// needs: history-preserving moves, staged file listing for pre-commit
// validation, and committing a batch of relocations. All commands target the
// project directory via the -C flag.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository represents a git working tree at a specific directory
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns stdout.
// Stderr is included in error messages on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Available reports whether the git binary is on PATH
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepository reports whether the directory is inside a git working tree
func (r *Repository) IsRepository(ctx context.Context) bool {
	if !Available() {
		return false
	}
	out, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Move runs git mv. Paths are relative to the repository directory. With
// force an existing destination is overwritten.
func (r *Repository) Move(ctx context.Context, src, dst string, force bool) error {
	args := []string{"mv"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "--", src, dst)
	_, err := r.Run(ctx, args...)
	return err
}

// StagedFiles lists files added, copied, modified or renamed in the index,
// relative to the repository directory with forward slashes. When the
// directory is below the top of the working tree, staged files outside it
// are left out.
func (r *Repository) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "diff", "--cached", "--name-only", "--relative", "--diff-filter=ACMR")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// TrackedPaths returns the subset of paths git knows about, including
// tracked files already removed from the working tree
func (r *Repository) TrackedPaths(ctx context.Context, paths ...string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	args := append([]string{"ls-files", "--"}, paths...)
	out, err := r.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CommitPaths stages the given paths (additions and removals) and commits
// only those paths. Returns the short hash, or "" when nothing was staged.
func (r *Repository) CommitPaths(ctx context.Context, message string, paths []string) (string, error) {
	tracked, err := r.TrackedPaths(ctx, paths...)
	if err != nil {
		return "", fmt.Errorf("failed to list tracked paths: %w", err)
	}

	seen := make(map[string]bool)
	var pathspec []string
	for _, p := range tracked {
		if !seen[p] {
			seen[p] = true
			pathspec = append(pathspec, p)
		}
	}
	for _, p := range paths {
		if seen[p] {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.dir, filepath.FromSlash(p))); err == nil {
			seen[p] = true
			pathspec = append(pathspec, p)
		}
	}
	if len(pathspec) == 0 {
		return "", nil
	}

	if _, err := r.Run(ctx, append([]string{"add", "-A", "--"}, pathspec...)...); err != nil {
		return "", fmt.Errorf("failed to stage paths: %w", err)
	}
	if _, err := r.Run(ctx, append([]string{"commit", "-m", message, "--"}, pathspec...)...); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	hash, err := r.Run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// HooksDir returns the absolute hooks directory of the repository
func (r *Repository) HooksDir(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	hooks := strings.TrimSpace(out)
	if !filepath.IsAbs(hooks) {
		hooks = filepath.Join(r.dir, hooks)
	}
	return hooks, nil
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
