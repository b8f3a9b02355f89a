package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

func TestCacheStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "structure-validation.json")
	storage := NewCacheStorage(path, arbor.NewNoOpLogger())
	ctx := context.Background()

	_, err := storage.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	snapshot := models.NewCacheSnapshot(time.Date(2026, 10, 8, 9, 0, 0, 0, time.UTC))
	snapshot.Entries["design.md"] = models.CacheEntry{
		Fingerprint: "0a1b2c",
		Violations:  []models.Violation{{FilePath: "design.md", RuleName: "docs", Severity: models.SeverityError}},
	}
	require.NoError(t, storage.SaveSnapshot(ctx, snapshot))

	// Artifact layout: top-level timestamp plus path -> {fingerprint, violations}
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "timestamp")
	assert.Contains(t, doc, "entries")

	loaded, err := storage.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Entries, loaded.Entries)
	assert.True(t, snapshot.Timestamp.Equal(loaded.Timestamp))

	require.NoError(t, storage.Clear(ctx))
	_, err = storage.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCacheStorage_Corrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structure-validation.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timestamp": "2026-10-08T09:00:00Z", "entries": {`), 0644))

	_, err := NewCacheStorage(path, arbor.NewNoOpLogger()).LoadSnapshot(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}
