package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

const sampleRules = `
file_types:
  - name: test_files
    patterns: ["test_*.py", "*_test.go"]
    canonical_location: tests/
    lifecycle_rule:
      trigger: never
      action: keep
  - name: reports
    patterns: ["*REPORT*.md"]
    conditions:
      - kind: not_path_prefix
        value: docs/
      - path_contains: reports
    canonical_location: docs/reports/
    lifecycle_rule:
      trigger: "age > 30 days AND task_completed"
      action: archive
      archive_location: docs/archive/
  - name: temp
    patterns: ["*.tmp"]
    canonical_location: "*"
    lifecycle_rule:
      trigger: immediate
      action: delete
      query_advisory: false
directory_rules:
  tests:
    purpose: Test suites
    required: true
forbidden_patterns:
  - location: .
    patterns: ["*.log"]
    exceptions: ["keep.log"]
    message: Log files do not belong in the root
settings:
  enforcement_mode: strict
  cache_ttl_seconds: 60
metadata:
  version: "1.2"
`

func TestParse_Sample(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	require.Len(t, rs.FileTypes, 3)
	assert.Equal(t, "test_files", rs.FileTypes[0].Name)
	assert.Equal(t, models.TriggerNever, rs.FileTypes[0].Lifecycle.Trigger.Kind)

	reports := rs.FileTypes[1]
	assert.Equal(t, models.TriggerAge, reports.Lifecycle.Trigger.Kind)
	assert.Equal(t, 30, reports.Lifecycle.Trigger.Days)
	assert.Equal(t, []string{"task_completed"}, reports.Lifecycle.Trigger.Clauses)
	require.Len(t, reports.Conditions, 2)
	assert.Equal(t, models.ConditionPathContains, reports.Conditions[1].Kind)
	assert.Equal(t, "reports", reports.Conditions[1].Value)

	assert.True(t, reports.Lifecycle.QueryAdvisory, "query_advisory defaults to true")

	assert.Equal(t, models.TriggerImmediate, rs.FileTypes[2].Lifecycle.Trigger.Kind)
	assert.False(t, rs.FileTypes[2].Lifecycle.QueryAdvisory)
	assert.False(t, rs.FileTypes[2].HasFixedHome())

	assert.True(t, rs.DirectoryRules["tests"].Required)
	require.Len(t, rs.ForbiddenPatterns, 1)
	assert.Equal(t, "1.2", rs.Metadata.Version)
}

func TestParse_SettingsKeepDefaults(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	assert.Equal(t, models.EnforcementStrict, rs.Settings.EnforcementMode)
	assert.Equal(t, 60, rs.Settings.CacheTTLSeconds)

	// Not present in the document
	assert.True(t, rs.Settings.BackupBeforeMove)
	assert.True(t, rs.Settings.RequireConfirmation)
	assert.True(t, rs.Settings.CacheValidationResults)
	assert.True(t, rs.Settings.QueryMemoryExpert)
	assert.NotEmpty(t, rs.Settings.GitCommitMessageTemplate)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty",
			doc:     "   \n",
			wantErr: "empty",
		},
		{
			name:    "missing sections",
			doc:     "file_types: []\nsettings: {}\n",
			wantErr: "missing required sections",
		},
		{
			name: "unsupported trigger",
			doc: `file_types:
  - name: a
    patterns: ["*.md"]
    canonical_location: docs
    lifecycle_rule:
      trigger: "when the moon is full"
directory_rules: {}
settings: {}
metadata: {}
`,
			wantErr: "unsupported trigger",
		},
		{
			name: "unknown condition kind",
			doc: `file_types:
  - name: a
    patterns: ["*.md"]
    canonical_location: docs
    conditions:
      - kind: filename_regex
        value: ".*"
directory_rules: {}
settings: {}
metadata: {}
`,
			wantErr: "unknown condition kind",
		},
		{
			name: "duplicate rule name",
			doc: `file_types:
  - name: a
    patterns: ["*.md"]
    canonical_location: docs
  - name: a
    patterns: ["*.txt"]
    canonical_location: docs
directory_rules: {}
settings: {}
metadata: {}
`,
			wantErr: "duplicate rule name",
		},
		{
			name:    "not a mapping",
			doc:     "- just\n- a list\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ConfigError(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var configErr *models.ConfigError
	require.True(t, errors.As(err, &configErr))
	assert.True(t, models.IsFatal(err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("file_types: []\n"), 0644))
	_, err = Load(bad)
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, bad, configErr.Path)

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(sampleRules), 0644))
	rs, err := Load(good)
	require.NoError(t, err)
	assert.Len(t, rs.FileTypes, 3)
}

func TestValidator_Valid(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	result := NewValidator(arbor.NewNoOpLogger()).Validate(rs)
	assert.True(t, result.Valid, "issues: %v", result.Issues)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.Warnings, "compound trigger and delete action produce warnings")
}

func TestValidator_SchemaIssues(t *testing.T) {
	rs := &models.RuleSet{
		FileTypes: []models.Rule{{Name: "no-patterns", CanonicalLocation: "docs"}},
		Settings:  models.NewDefaultSettings(),
	}

	result := NewValidator(arbor.NewNoOpLogger()).Validate(rs)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Issues)
}

func TestValidator_DegradesWithoutSchema(t *testing.T) {
	rs := &models.RuleSet{
		FileTypes: []models.Rule{
			{Name: "", Patterns: []string{"*.md"}, CanonicalLocation: "docs"},
			{Name: "b", Patterns: nil, CanonicalLocation: ""},
		},
		ForbiddenPatterns: []models.ForbiddenPattern{{Location: "."}},
		Settings:          models.NewDefaultSettings(),
	}

	result := NewValidatorWith(nil, arbor.NewNoOpLogger()).Validate(rs)
	assert.True(t, result.Degraded)
	assert.False(t, result.Valid)
	assert.Len(t, result.Issues, 4)
}

func TestValidator_Nil(t *testing.T) {
	result := NewValidator(arbor.NewNoOpLogger()).Validate(nil)
	assert.False(t, result.Valid)
}
