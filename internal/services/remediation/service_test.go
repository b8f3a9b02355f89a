package remediation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/interfaces"
	"github.com/ternarybob/canon/internal/models"
	"github.com/ternarybob/canon/internal/services/advisory"
	"github.com/ternarybob/canon/internal/services/backup"
	"github.com/ternarybob/canon/internal/services/cache"
	"github.com/ternarybob/canon/internal/services/classifier"
	"github.com/ternarybob/canon/internal/services/relocate"
	"github.com/ternarybob/canon/internal/services/rules"
	"github.com/ternarybob/canon/internal/services/validation"
	"github.com/ternarybob/canon/internal/storage/jsonfile"
)

// MockAdvisoryClient is a mock implementation of AdvisoryClient
type MockAdvisoryClient struct {
	mock.Mock
}

func (m *MockAdvisoryClient) AnalyzeFileSafety(ctx context.Context, relPath string) (*models.SafetyReport, error) {
	args := m.Called(ctx, relPath)
	if report, ok := args.Get(0).(*models.SafetyReport); ok {
		return report, args.Error(1)
	}
	return nil, args.Error(1)
}

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func docsRules() *models.RuleSet {
	settings := models.NewDefaultSettings()
	settings.EnforcementMode = models.EnforcementStrict
	settings.QueryMemoryExpert = false
	return &models.RuleSet{
		FileTypes: []models.Rule{
			{Name: "documentation", Patterns: []string{"*.md"}, CanonicalLocation: "docs/"},
		},
		DirectoryRules: map[string]models.DirectoryRule{},
		Settings:       settings,
	}
}

type harness struct {
	root      string
	rules     *models.RuleSet
	advisory  interfaces.AdvisoryClient
	validator *validation.Service
	service   *Service
}

func newHarness(t *testing.T, root string, rules *models.RuleSet, advisory interfaces.AdvisoryClient, lookup func(string) (string, bool)) *harness {
	t.Helper()
	logger := arbor.NewNoOpLogger()
	store := jsonfile.NewCacheStorage(filepath.Join(root, ".claude", "cache", "structure-validation.json"), logger)
	validator := validation.NewService(
		classifier.NewService(rules, root, logger),
		cache.NewService(store, root, rules, logger),
		nil,
		logger,
	)
	service := NewService(Dependencies{
		Config:    common.NewDefaultConfig(),
		Rules:     rules,
		Root:      root,
		Validator: validator,
		Advisory:  advisory,
		Relocator: relocate.NewServiceWith(root, logger, relocate.NewFileStrategy(root)),
		Backup:    backup.NewService(".claude/backups", root, logger),
		LookupEnv: lookup,
		Logger:    logger,
	})
	return &harness{root: root, rules: rules, advisory: advisory, validator: validator, service: service}
}

func TestFixViolations_ScenarioB(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	rules := docsRules()
	rules.Settings.QueryMemoryExpert = true

	advisory := new(MockAdvisoryClient)
	advisory.On("AnalyzeFileSafety", mock.Anything, "design.md").Return(&models.SafetyReport{
		FilePath:        "design.md",
		SafeToArchive:   true,
		LifecycleStatus: models.LifecycleCompleted,
		Reason:          "safe",
	}, nil)

	h := newHarness(t, root, rules, advisory, noEnv)
	ctx := context.Background()

	before, err := h.validator.Validate(ctx, validation.ModeFull, nil)
	require.NoError(t, err)
	require.Len(t, before.ForFile("design.md"), 1)

	result, err := h.service.FixViolations(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fixed)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.FileStateMoved, result.Outcomes[0].State)
	assert.Equal(t, "filesystem", result.Outcomes[0].Strategy)
	assert.NotEmpty(t, result.Outcomes[0].Backup)

	assert.NoFileExists(t, filepath.Join(root, "design.md"))
	assert.Equal(t, "# design", readFile(t, root, "docs/design.md"))
	assert.Equal(t, "# design", readFile(t, root, result.Outcomes[0].Backup))

	after, err := h.validator.Validate(ctx, validation.ModeFull, nil)
	require.NoError(t, err)
	assert.Empty(t, after.ForFile("design.md"))
	assert.Empty(t, after.ForFile("docs/design.md"))
	assert.False(t, after.HasBlocking())

	advisory.AssertExpectations(t)
}

func TestFixViolations_ScenarioC(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	rules := docsRules()
	rules.Settings.QueryMemoryExpert = true

	advisory := new(MockAdvisoryClient)
	advisory.On("AnalyzeFileSafety", mock.Anything, "design.md").Return(&models.SafetyReport{
		FilePath:         "design.md",
		ActiveReferences: []string{".claude/TASK_BOARD.md"},
		LifecycleStatus:  models.LifecycleActive,
		Reason:           "referenced in .claude/TASK_BOARD.md",
	}, nil)

	h := newHarness(t, root, rules, advisory, noEnv)
	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Fixed)
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, result.Unresolved())
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.FileStateSkipped, result.Outcomes[0].State)
	assert.Contains(t, result.Outcomes[0].Reason, ".claude/TASK_BOARD.md")

	assert.FileExists(t, filepath.Join(root, "design.md"))
	assert.NoDirExists(t, filepath.Join(root, "docs"))
	advisory.AssertExpectations(t)
}

func TestFixViolations_ConsultsAdvisoryByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	writeFile(t, root, "plan.md", "# plan")
	writeFile(t, root, ".claude/TASK_BOARD.md", "## In progress\n- [ ] finish design.md\n")

	rs, err := rules.Parse([]byte(`
file_types:
  - name: documentation
    patterns: ["*.md"]
    conditions:
      - not_path_prefix: .claude
    canonical_location: docs/
directory_rules: {}
settings:
  enforcement_mode: strict
metadata:
  version: "1.0"
`))
	require.NoError(t, err)
	require.True(t, rs.Settings.QueryMemoryExpert)

	config := common.NewDefaultConfig().Advisory
	h := newHarness(t, root, rs, advisory.NewService(&config, root, arbor.NewNoOpLogger()), noEnv)

	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Fixed)
	assert.Equal(t, 2, result.Skipped)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, models.FileStateSkipped, outcome.State)
	}
	assert.FileExists(t, filepath.Join(root, "design.md"))
	assert.FileExists(t, filepath.Join(root, "plan.md"), "no lifecycle signal keeps the file")
	assert.NoDirExists(t, filepath.Join(root, "docs"))
}

func TestFixResult_Unresolved(t *testing.T) {
	tests := []struct {
		name   string
		result models.FixResult
		want   bool
	}{
		{name: "nothing to do", result: models.FixResult{}},
		{name: "all fixed", result: models.FixResult{Fixed: 2}},
		{name: "all skipped", result: models.FixResult{Skipped: 1}, want: true},
		{name: "partly fixed", result: models.FixResult{Fixed: 1, Skipped: 1}},
		{name: "dry run", result: models.FixResult{DryRun: true, Skipped: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Unresolved())
		})
	}
}

func TestFixViolations_PartialFixIsResolved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	writeFile(t, root, "debug.log", "log")
	rules := docsRules()
	rules.FileTypes = append(rules.FileTypes, models.Rule{Name: "logs", Patterns: []string{"*.log"}, CanonicalLocation: "logs"})
	rules.ForbiddenPatterns = []models.ForbiddenPattern{{Location: ".", Patterns: []string{"*.log"}}}

	h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)
	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fixed)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, result.Unresolved())
	assert.FileExists(t, filepath.Join(root, "docs", "design.md"))
	assert.FileExists(t, filepath.Join(root, "debug.log"))
}

func TestFixViolations_SkipAdvisory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	rules := docsRules()
	rules.Settings.QueryMemoryExpert = true

	advisory := new(MockAdvisoryClient)
	h := newHarness(t, root, rules, advisory, noEnv)

	result, err := h.service.FixViolations(context.Background(), Options{SkipAdvisory: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fixed)
	advisory.AssertNotCalled(t, "AnalyzeFileSafety", mock.Anything, mock.Anything)
}

func TestFixViolations_DryRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")

	h := newHarness(t, root, docsRules(), new(MockAdvisoryClient), noEnv)
	result, err := h.service.FixViolations(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 0, result.Fixed)
	assert.False(t, result.Unresolved())
	require.Len(t, result.Planned, 1)
	assert.Equal(t, models.MovePlan{Source: "design.md", Destination: "docs/design.md", Rule: "documentation"}, result.Planned[0])
	assert.Equal(t, models.FileStatePlanned, result.Outcomes[0].State)

	assert.FileExists(t, filepath.Join(root, "design.md"))
	assert.NoDirExists(t, filepath.Join(root, "docs"))
	assert.NoDirExists(t, filepath.Join(root, ".claude", "backups"))
}

func TestFixViolations_EnvironmentBlocked(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")

	lookup := func(name string) (string, bool) {
		if name == "VERCEL" {
			return "1", true
		}
		return "", false
	}
	h := newHarness(t, root, docsRules(), new(MockAdvisoryClient), lookup)

	_, err := h.service.FixViolations(context.Background(), Options{})
	var blocked *models.EnvironmentBlocked
	require.True(t, errors.As(err, &blocked))
	assert.True(t, models.IsFatal(err))
	assert.FileExists(t, filepath.Join(root, "design.md"))

	_, err = h.service.FixMigration(context.Background(), Options{})
	assert.True(t, errors.As(err, &blocked))
}

func TestFixViolations_PathTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	writeFile(t, root, "design.md", "# design")
	writeFile(t, root, "notes.txt", "notes")

	rules := docsRules()
	rules.FileTypes = []models.Rule{
		{Name: "escape", Patterns: []string{"*.md"}, CanonicalLocation: "../outside"},
		{Name: "sneaky", Patterns: []string{"*.txt"}, CanonicalLocation: "docs/../../outside2"},
	}
	h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)

	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fixed)
	assert.Equal(t, 2, result.Skipped)
	for _, outcome := range result.Outcomes {
		assert.Contains(t, outcome.Reason, "escapes project root")
	}

	assert.NoDirExists(t, filepath.Join(parent, "outside"))
	assert.NoDirExists(t, filepath.Join(parent, "outside2"))
	assert.FileExists(t, filepath.Join(root, "design.md"))
}

func TestFixViolations_SymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	outside := filepath.Join(parent, "outside")
	require.NoError(t, os.MkdirAll(outside, 0755))
	writeFile(t, root, "design.md", "# design")
	if err := os.Symlink(outside, filepath.Join(root, "docs")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	h := newHarness(t, root, docsRules(), new(MockAdvisoryClient), noEnv)
	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fixed)
	assert.NoFileExists(t, filepath.Join(outside, "design.md"))
}

func TestFixViolations_Conflict(t *testing.T) {
	tests := []struct {
		name                string
		requireConfirmation bool
		wantFixed           int
		wantDocs            string
		wantRootExists      bool
	}{
		{name: "confirmation required skips", requireConfirmation: true, wantFixed: 0, wantDocs: "old", wantRootExists: true},
		{name: "confirmation disabled overwrites", requireConfirmation: false, wantFixed: 1, wantDocs: "new", wantRootExists: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, root, "design.md", "new")
			writeFile(t, root, "docs/design.md", "old")
			rules := docsRules()
			rules.Settings.RequireConfirmation = tt.requireConfirmation

			h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)
			result, err := h.service.FixViolations(context.Background(), Options{})
			require.NoError(t, err)

			assert.Equal(t, tt.wantFixed, result.Fixed)
			assert.Equal(t, tt.wantDocs, readFile(t, root, "docs/design.md"))
			if tt.wantRootExists {
				assert.FileExists(t, filepath.Join(root, "design.md"))
				assert.Contains(t, result.Outcomes[0].Reason, "already exists")
			} else {
				assert.NoFileExists(t, filepath.Join(root, "design.md"))
			}
		})
	}
}

func TestFixViolations_ForbiddenNeverMoved(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "debug.log", "log")
	rules := docsRules()
	rules.FileTypes = append(rules.FileTypes, models.Rule{Name: "logs", Patterns: []string{"*.log"}, CanonicalLocation: "logs"})
	rules.ForbiddenPatterns = []models.ForbiddenPattern{{Location: ".", Patterns: []string{"*.log"}}}

	h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)
	result, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Fixed)
	require.Len(t, result.Outcomes, 1)
	assert.Contains(t, result.Outcomes[0].Reason, "forbidden")
	assert.FileExists(t, filepath.Join(root, "debug.log"))
}

func TestFixViolations_WarningsOnlyInApply(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	rules := docsRules()
	rules.Settings.EnforcementMode = models.EnforcementAdvisory
	rules.DirectoryRules["scripts"] = models.DirectoryRule{Required: true}

	h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)

	preview, err := h.service.FixViolations(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, preview.Outcomes)

	applied, err := h.service.FixViolations(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, applied.Fixed)
	assert.FileExists(t, filepath.Join(root, "docs", "design.md"))
	assert.DirExists(t, filepath.Join(root, "scripts"))
}

func TestFixViolations_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "design.md", "# design")
	writeFile(t, root, "notes/plan.md", "# plan")

	h := newHarness(t, root, docsRules(), new(MockAdvisoryClient), noEnv)
	ctx := context.Background()

	first, err := h.service.FixViolations(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Fixed)

	second, err := h.service.FixViolations(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Fixed)
	assert.Equal(t, 0, second.Skipped)
	assert.Empty(t, second.Outcomes)
}

func TestFixMigration(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "memory/planner-memory.json", `{"agent_name": "planner"}`)
	writeFile(t, root, "memory/coder-memory.json", `{"agent_name": "coder"}`)
	writeFile(t, root, "memory/notes.txt", "not migrated")
	writeFile(t, root, "agents/planner.md", "# planner")
	writeFile(t, root, ".claude/agents/planner.md", "# existing")

	h := newHarness(t, root, docsRules(), new(MockAdvisoryClient), noEnv)

	preview, err := h.service.FixMigration(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, preview.Planned, 2)
	assert.FileExists(t, filepath.Join(root, "memory", "planner-memory.json"))

	result, err := h.service.FixMigration(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fixed)
	assert.Equal(t, 1, result.Skipped, "existing destination is a conflict")

	assert.FileExists(t, filepath.Join(root, ".claude", "memory", "planner-memory.json"))
	assert.FileExists(t, filepath.Join(root, ".claude", "memory", "coder-memory.json"))
	assert.FileExists(t, filepath.Join(root, "memory", "notes.txt"))
	assert.Equal(t, "# existing", readFile(t, root, ".claude/agents/planner.md"))
}

func TestFixMigration_ConfiguredRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "legacy/a.sh", "a")
	writeFile(t, root, "legacy/b.sh", "b")
	writeFile(t, root, "README.old", "readme")

	rules := docsRules()
	rules.Migrations = []models.Migration{
		{From: "legacy", To: "scripts"},
		{From: "README.old", To: "docs/archive"},
		{From: "l*/x.sh", To: "scripts"},
		{From: "../etc/passwd", To: "stolen"},
	}
	h := newHarness(t, root, rules, new(MockAdvisoryClient), noEnv)

	result, err := h.service.FixMigration(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fixed)
	assert.Equal(t, 1, result.Skipped, "wildcard in directory part is rejected")
	assert.FileExists(t, filepath.Join(root, "scripts", "a.sh"))
	assert.FileExists(t, filepath.Join(root, "scripts", "b.sh"))
	assert.FileExists(t, filepath.Join(root, "docs", "archive", "README.old"))
}

func TestUniqueByFile(t *testing.T) {
	violations := []models.Violation{
		{FilePath: "a.log", RuleName: "logs"},
		{FilePath: "b.md", RuleName: "docs"},
		{FilePath: "a.log", RuleName: models.ForbiddenRulePrefix + "."},
	}
	got := uniqueByFile(violations)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsForbidden())
	assert.Equal(t, "b.md", got[1].FilePath)
}
