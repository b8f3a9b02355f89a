package relocate

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/models"
)

type failingStrategy struct {
	err   error
	calls int
}

func (f *failingStrategy) Name() string { return "failing" }

func (f *failingStrategy) Move(ctx context.Context, src, dst string, overwrite bool) error {
	f.calls++
	return f.err
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestRelocate_FallsBackToFilesystem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "design")

	preferred := &failingStrategy{err: errors.New("not tracked")}
	svc := NewServiceWith(root, arbor.NewNoOpLogger(), preferred, NewFileStrategy(root))

	strategy, err := svc.Relocate(context.Background(), "design.md", "docs/design.md", false)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", strategy)
	assert.Equal(t, 1, preferred.calls)

	assert.NoFileExists(t, filepath.Join(root, "design.md"))
	assert.FileExists(t, filepath.Join(root, "docs", "design.md"))
}

func TestRelocate_Conflict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "new")
	writeFile(t, root, "docs/design.md", "old")

	svc := NewServiceWith(root, arbor.NewNoOpLogger(), NewFileStrategy(root))
	_, err := svc.Relocate(context.Background(), "design.md", "docs/design.md", false)

	var conflict *models.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "docs/design.md", conflict.Destination)

	data, err := os.ReadFile(filepath.Join(root, "docs", "design.md"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.FileExists(t, filepath.Join(root, "design.md"))
}

func TestRelocate_Overwrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "new")
	writeFile(t, root, "docs/design.md", "old")

	svc := NewServiceWith(root, arbor.NewNoOpLogger(), NewFileStrategy(root))
	strategy, err := svc.Relocate(context.Background(), "design.md", "docs/design.md", true)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", strategy)

	data, err := os.ReadFile(filepath.Join(root, "docs", "design.md"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestRelocate_AllStrategiesFail(t *testing.T) {
	root := t.TempDir()
	svc := NewServiceWith(root, arbor.NewNoOpLogger(), NewFileStrategy(root))

	_, err := svc.Relocate(context.Background(), "missing.md", "docs/missing.md", false)
	var failure *models.MoveFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "missing.md", failure.Source)
}

func TestGitStrategy_Unavailable(t *testing.T) {
	err := NewGitStrategy(nil).Move(context.Background(), "a", "b", false)
	assert.ErrorIs(t, err, ErrUnavailable)

	// A plain directory is not a working tree
	err = NewGitStrategy(git.NewRepository(t.TempDir())).Move(context.Background(), "a", "b", false)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRelocate_PrefersGit(t *testing.T) {
	if !git.Available() {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	writeFile(t, root, "design.md", "design")
	writeFile(t, root, "untracked.md", "scratch")
	run("add", "design.md")
	run("commit", "-q", "-m", "init")

	svc := NewService(root, git.NewRepository(root), arbor.NewNoOpLogger())

	strategy, err := svc.Relocate(context.Background(), "design.md", "docs/design.md", false)
	require.NoError(t, err)
	assert.Equal(t, "git", strategy)
	assert.FileExists(t, filepath.Join(root, "docs", "design.md"))

	strategy, err = svc.Relocate(context.Background(), "untracked.md", "docs/untracked.md", false)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", strategy)
}
