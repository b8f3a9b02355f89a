package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFiles_Defaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, ".", config.Project.Root)
	assert.Equal(t, ".claude/config/canonical-structure.yaml", config.Project.StructureFile)
	assert.Equal(t, "file", config.Cache.Backend)
	assert.Equal(t, 7, config.Advisory.MinArchiveAgeDays)
	assert.Equal(t, "0 3 * * *", config.Cleanup.Schedule)
	assert.False(t, config.IsProduction())
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "base.toml", `
[project]
structure_file = "rules/structure.yaml"

[cache]
backend = "badger"

[logging]
level = "debug"
`)
	local := writeConfig(t, dir, "local.toml", `
[cache]
backend = "file"

[advisory]
min_archive_age_days = 14
`)

	config, err := LoadFromFiles(base, local)
	require.NoError(t, err)

	assert.Equal(t, "rules/structure.yaml", config.Project.StructureFile, "value only in the first file survives")
	assert.Equal(t, "file", config.Cache.Backend, "second file wins")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, 14, config.Advisory.MinArchiveAgeDays)
	assert.Equal(t, ".claude/backups", config.Backup.Dir, "untouched defaults are kept")
}

func TestLoadFromFiles_EnvOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "canon.toml", `
[cleanup]
schedule = "0 4 * * *"
`)
	t.Setenv("CANON_CLEANUP_SCHEDULE", "30 2 * * 1")
	t.Setenv("CANON_LOG_OUTPUT", "stdout, file")
	t.Setenv("CANON_MIN_ARCHIVE_AGE_DAYS", "3")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "30 2 * * 1", config.Cleanup.Schedule)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, 3, config.Advisory.MinArchiveAgeDays)
}

func TestLoadFromFiles_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed toml", "[cache\nbackend = ", "failed to parse config file"},
		{"unknown backend", "[cache]\nbackend = \"redis\"", "unsupported cache backend"},
		{"negative age", "[advisory]\nmin_archive_age_days = -1", "must not be negative"},
		{"schedule too frequent", "[cleanup]\nschedule = \"* * * * *\"", "cleanup.schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, dir, "bad.toml", tt.content)
			_, err := LoadFromFiles(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadFromFiles(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"0 3 * * *", true},
		{"*/5 * * * *", true},
		{"*/15 9-17 * * 1-5", true},
		{"* * * * *", false},
		{"*/2 * * * *", false},
		{"not a schedule", false},
		{"0 3 * *", false},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, "", "", "")
	assert.Equal(t, ".", config.Project.Root, "empty flags change nothing")

	ApplyFlagOverrides(config, "/srv/project", "structure.yaml", "warn")
	assert.Equal(t, "/srv/project", config.Project.Root)
	assert.Equal(t, "structure.yaml", config.Project.StructureFile)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestProjectRootAndResolve(t *testing.T) {
	dir := t.TempDir()
	config := NewDefaultConfig()
	config.Project.Root = dir

	root, err := config.ProjectRoot()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root))

	assert.Equal(t, filepath.Join(root, ".claude", "backups"), config.Resolve(root, ".claude/backups"))
	assert.Equal(t, "/etc/canon.yaml", config.Resolve(root, "/etc/canon.yaml"))
	assert.Equal(t, "", config.Resolve(root, ""))

	file := writeConfig(t, dir, "file.txt", "x")
	config.Project.Root = file
	_, err = config.ProjectRoot()
	assert.ErrorContains(t, err, "not a directory")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, ".env")), "missing file is ignored")

	path := writeConfig(t, dir, ".env", "CANON_TEST_DOTENV=loaded\n")
	t.Setenv("CANON_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CANON_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CANON_TEST_DOTENV"))
}
