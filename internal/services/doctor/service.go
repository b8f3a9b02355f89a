// Package doctor checks that a project is set up for canon: hooks, rule
// configuration, agent definitions, memory snapshots and helper scripts.
package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
	"github.com/ternarybob/canon/internal/git"
	"github.com/ternarybob/canon/internal/services/rules"
	"gopkg.in/yaml.v3"
)

// Status of a single check
type Status string

// Status constants
const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is the outcome of one setup check
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report collects every check of one doctor run
type Report struct {
	Checks []Check `json:"checks"`
}

// Failed counts failing checks
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			n++
		}
	}
	return n
}

// requiredHooks must exist and be executable in the hooks directory
var requiredHooks = []string{"pre-commit"}

// memoryKeys must be present in every agent memory snapshot
var memoryKeys = []string{"agent_name", "hot_memory", "warm_memory", "cold_memory"}

// agentFields must be present in every agent definition's frontmatter
var agentFields = []string{"agent_name", "permissionMode"}

// Service runs the setup checks
type Service struct {
	config    *common.Config
	root      string
	repo      *git.Repository
	validator *rules.Validator
	logger    arbor.ILogger
}

// NewService creates a doctor for the project at root. repo may be nil.
func NewService(config *common.Config, root string, repo *git.Repository, validator *rules.Validator, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		root:      root,
		repo:      repo,
		validator: validator,
		logger:    logger,
	}
}

// Run executes every check. Checks are independent; one failing never
// stops the others.
func (s *Service) Run(ctx context.Context) *Report {
	checks := []struct {
		name string
		fn   func(ctx context.Context) (Status, string)
	}{
		{"Git hooks installed", s.checkHooks},
		{"Rule configuration valid", s.checkRules},
		{"Agent frontmatter valid", s.checkAgents},
		{"Memory snapshots valid", s.checkMemory},
		{"CLAUDE.md configured", s.checkClaudeMD},
		{"Scripts executable", s.checkScripts},
		{"Configuration files valid", s.checkConfigFiles},
	}

	report := &Report{}
	for _, c := range checks {
		status, detail := c.fn(ctx)
		report.Checks = append(report.Checks, Check{Name: c.name, Status: status, Detail: detail})

		event := s.logger.Debug()
		if status == StatusFail {
			event = s.logger.Warn()
		}
		event.Str("check", c.name).Str("status", string(status)).Str("detail", detail).Msg("Doctor check")
	}
	return report
}

func (s *Service) checkHooks(ctx context.Context) (Status, string) {
	if s.repo == nil || !s.repo.IsRepository(ctx) {
		return StatusFail, "not a git repository"
	}
	dir, err := s.repo.HooksDir(ctx)
	if err != nil {
		return StatusFail, fmt.Sprintf("failed to locate hooks directory: %v", err)
	}
	for _, hook := range requiredHooks {
		info, err := os.Stat(filepath.Join(dir, hook))
		if err != nil {
			return StatusFail, hook + " hook not found"
		}
		if info.Mode().Perm()&0111 == 0 {
			return StatusFail, hook + " hook not executable"
		}
	}
	return StatusPass, ""
}

func (s *Service) checkRules(ctx context.Context) (Status, string) {
	path := s.config.Resolve(s.root, s.config.Project.StructureFile)
	rs, err := rules.Load(path)
	if err != nil {
		return StatusFail, err.Error()
	}
	result := s.validator.Validate(rs)
	if !result.Valid {
		return StatusFail, strings.Join(result.Issues, "; ")
	}
	if result.Degraded || len(result.Warnings) > 0 {
		return StatusWarn, strings.Join(result.Warnings, "; ")
	}
	return StatusPass, fmt.Sprintf("%d rules", len(rs.FileTypes))
}

func (s *Service) checkAgents(ctx context.Context) (Status, string) {
	files, err := s.glob(".claude/agents", "*.md")
	if err != nil {
		return StatusFail, "agents directory not found"
	}
	if len(files) == 0 {
		return StatusFail, "no agent files found"
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return StatusFail, err.Error()
		}
		front, ok := frontmatter(data)
		if !ok {
			return StatusFail, filepath.Base(file) + " missing frontmatter"
		}
		var fields map[string]interface{}
		if err := yaml.Unmarshal(front, &fields); err != nil {
			return StatusFail, fmt.Sprintf("%s invalid frontmatter: %v", filepath.Base(file), err)
		}
		for _, field := range agentFields {
			if _, ok := fields[field]; !ok {
				return StatusFail, fmt.Sprintf("%s missing required field: %s", filepath.Base(file), field)
			}
		}
	}
	return StatusPass, fmt.Sprintf("%d agents", len(files))
}

func (s *Service) checkMemory(ctx context.Context) (Status, string) {
	files, err := s.glob(s.config.Advisory.MemoryDir, s.config.Advisory.MemoryGlob)
	if err != nil {
		return StatusFail, "memory directory not found"
	}
	if len(files) == 0 {
		return StatusWarn, "no memory snapshots found"
	}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return StatusFail, err.Error()
		}
		var snapshot map[string]json.RawMessage
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return StatusFail, fmt.Sprintf("%s is not valid JSON: %v", filepath.Base(file), err)
		}
		for _, key := range memoryKeys {
			if _, ok := snapshot[key]; !ok {
				return StatusFail, fmt.Sprintf("%s missing key: %s", filepath.Base(file), key)
			}
		}
	}
	return StatusPass, fmt.Sprintf("%d snapshots", len(files))
}

func (s *Service) checkClaudeMD(ctx context.Context) (Status, string) {
	data, err := os.ReadFile(filepath.Join(s.root, "CLAUDE.md"))
	if err != nil {
		return StatusFail, "CLAUDE.md not found"
	}
	if bytes.Contains(data, []byte("{{")) || bytes.Contains(data, []byte("}}")) {
		return StatusFail, "CLAUDE.md still contains template placeholders"
	}
	if !bytes.Contains(data, []byte("Project Overview")) {
		return StatusWarn, "CLAUDE.md has no Project Overview section"
	}
	return StatusPass, ""
}

func (s *Service) checkScripts(ctx context.Context) (Status, string) {
	files, err := s.glob(".claude/scripts", "*.sh")
	if err != nil {
		return StatusWarn, "scripts directory not found"
	}
	var notExecutable []string
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || info.Mode().Perm()&0111 == 0 {
			notExecutable = append(notExecutable, filepath.Base(file))
		}
	}
	if len(notExecutable) > 0 {
		return StatusFail, "not executable: " + strings.Join(notExecutable, ", ")
	}
	return StatusPass, fmt.Sprintf("%d scripts", len(files))
}

func (s *Service) checkConfigFiles(ctx context.Context) (Status, string) {
	dir := filepath.Join(s.root, ".claude", "config")
	if _, err := os.Stat(dir); err != nil {
		return StatusFail, "config directory not found"
	}

	if data, err := os.ReadFile(filepath.Join(dir, "project-config.yaml")); err == nil {
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return StatusFail, fmt.Sprintf("project-config.yaml: %v", err)
		}
		if missing := missingKeys(doc, "project", "tech_stack"); len(missing) > 0 {
			return StatusFail, "project-config.yaml missing " + strings.Join(missing, ", ")
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "reflection-config.json")); err == nil {
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return StatusFail, fmt.Sprintf("reflection-config.json: %v", err)
		}
		if missing := missingKeys(doc, "tier1_agents", "tier2_validator"); len(missing) > 0 {
			return StatusFail, "reflection-config.json missing " + strings.Join(missing, ", ")
		}
	}
	return StatusPass, ""
}

// glob lists files matching pattern inside a project-relative directory.
// A missing directory is an error.
func (s *Service) glob(dir, pattern string) ([]string, error) {
	abs := s.config.Resolve(s.root, dir)
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(abs, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// frontmatter returns the YAML block between the leading --- markers
func frontmatter(data []byte) ([]byte, bool) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, false
	}
	rest := data[3:]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, false
	}
	return rest[:end], true
}

func missingKeys(doc map[string]interface{}, keys ...string) []string {
	var missing []string
	for _, key := range keys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
