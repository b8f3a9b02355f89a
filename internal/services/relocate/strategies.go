package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/ternarybob/canon/internal/git"
)

// GitStrategy moves files with git mv so history follows the file
type GitStrategy struct {
	repo      *git.Repository
	once      sync.Once
	available bool
}

// NewGitStrategy creates the git strategy. A nil repository is never available.
func NewGitStrategy(repo *git.Repository) *GitStrategy {
	return &GitStrategy{repo: repo}
}

// Name implements Strategy
func (g *GitStrategy) Name() string { return "git" }

// Move implements Strategy. Untracked files make git mv fail, which hands the
// move to the next strategy.
func (g *GitStrategy) Move(ctx context.Context, src, dst string, overwrite bool) error {
	if g.repo == nil {
		return ErrUnavailable
	}
	g.once.Do(func() {
		g.available = g.repo.IsRepository(ctx)
	})
	if !g.available {
		return ErrUnavailable
	}
	return g.repo.Move(ctx, src, dst, overwrite)
}

// FileStrategy renames within the filesystem, copying when the rename
// crosses devices
type FileStrategy struct {
	root string
}

// NewFileStrategy creates the plain filesystem strategy
func NewFileStrategy(root string) *FileStrategy {
	return &FileStrategy{root: root}
}

// Name implements Strategy
func (f *FileStrategy) Name() string { return "filesystem" }

// Move implements Strategy
func (f *FileStrategy) Move(ctx context.Context, src, dst string, overwrite bool) error {
	from := filepath.Join(f.root, filepath.FromSlash(src))
	to := filepath.Join(f.root, filepath.FromSlash(dst))

	if _, err := os.Lstat(to); err == nil {
		if !overwrite {
			return fmt.Errorf("destination %s exists", dst)
		}
		if err := os.Remove(to); err != nil {
			return err
		}
	}

	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	return copyAndRemove(from, to)
}

func copyAndRemove(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	info, err := in.Stat()
	if err != nil {
		in.Close()
		return err
	}

	out, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		in.Close()
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		in.Close()
		out.Close()
		os.Remove(to)
		return err
	}
	in.Close()
	if err := out.Close(); err != nil {
		os.Remove(to)
		return err
	}
	if err := os.Chtimes(to, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Remove(from)
}
