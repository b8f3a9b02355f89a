package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestBackup(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0755))
	src := filepath.Join(root, "notes", "design.md")
	require.NoError(t, os.WriteFile(src, []byte("# design v1"), 0644))

	clock := time.Date(2026, 10, 9, 14, 30, 0, 0, time.UTC)
	svc := NewService(".claude/backups", root, arbor.NewNoOpLogger()).WithClock(func() time.Time { return clock })

	rel, err := svc.Backup("notes/design.md")
	require.NoError(t, err)
	assert.Equal(t, ".claude/backups/2026-10-09/notes/design.md", rel)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "# design v1", string(data))

	srcSum, err := Digest(src)
	require.NoError(t, err)
	dstSum, err := Digest(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, srcSum, dstSum)

	// A second backup the same day keeps the first one
	require.NoError(t, os.WriteFile(src, []byte("# design v2"), 0644))
	second, err := svc.Backup("notes/design.md")
	require.NoError(t, err)
	assert.NotEqual(t, rel, second)

	first, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "# design v1", string(first))
}

func TestBackup_MissingSource(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "backups"), t.TempDir(), arbor.NewNoOpLogger())
	_, err := svc.Backup("missing.md")
	assert.Error(t, err)
}
