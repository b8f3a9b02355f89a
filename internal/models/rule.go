// -----------------------------------------------------------------------
// Last Modified: Tuesday, 6th October 2026 9:12:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// CanonicalAnywhere is the canonical_location sentinel for rules that have no
// fixed home. Files matching such a rule are never reported as misplaced.
const CanonicalAnywhere = "*"

// Required top-level sections of the rule configuration document
var RequiredSections = []string{"file_types", "directory_rules", "settings", "metadata"}

// EnforcementMode controls the severity of location mismatches
type EnforcementMode string

// EnforcementMode constants
const (
	EnforcementStrict   EnforcementMode = "strict"   // Mismatches are blocking errors
	EnforcementAdvisory EnforcementMode = "advisory" // Mismatches are warnings
)

// LifecycleAction is what happens to a file once its lifecycle trigger fires
type LifecycleAction string

// LifecycleAction constants
const (
	ActionKeep    LifecycleAction = "keep"
	ActionArchive LifecycleAction = "archive"
	ActionDelete  LifecycleAction = "delete"
)

// IsValidLifecycleAction checks if a given action is one of the valid constants
func IsValidLifecycleAction(action LifecycleAction) bool {
	switch action {
	case ActionKeep, ActionArchive, ActionDelete, "":
		return true
	default:
		return false
	}
}

// LifecycleRule describes when and how a file is archived or deleted over time
type LifecycleRule struct {
	Trigger         Trigger         `yaml:"trigger" json:"trigger"`
	Action          LifecycleAction `yaml:"action" json:"action" validate:"omitempty,oneof=keep archive delete"`
	ArchiveLocation string          `yaml:"archive_location" json:"archive_location,omitempty"`
	QueryAdvisory   bool            `yaml:"query_advisory" json:"query_advisory"` // Consult the advisory client before acting
}

// UnmarshalYAML decodes a lifecycle rule. query_advisory defaults to true
// when the key is absent.
func (l *LifecycleRule) UnmarshalYAML(value *yaml.Node) error {
	type plain LifecycleRule
	decoded := plain{QueryAdvisory: true}
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*l = LifecycleRule(decoded)
	return nil
}

// Rule is one entry in the file_types section of the rule configuration.
// Rules are evaluated in declaration order and the first full match wins.
type Rule struct {
	Name              string        `yaml:"name" json:"name" validate:"required"`
	Description       string        `yaml:"description" json:"description,omitempty"`
	Patterns          []string      `yaml:"patterns" json:"patterns" validate:"required,min=1,dive,required"`
	Conditions        []Condition   `yaml:"conditions" json:"conditions,omitempty" validate:"dive"`
	CanonicalLocation string        `yaml:"canonical_location" json:"canonical_location" validate:"required"`
	Lifecycle         LifecycleRule `yaml:"lifecycle_rule" json:"lifecycle_rule"`
}

// HasFixedHome reports whether the rule pins matching files to a directory
func (r *Rule) HasFixedHome() bool {
	return strings.TrimSpace(r.CanonicalLocation) != CanonicalAnywhere
}

// CanonicalDir returns the canonical location as a clean slash path relative
// to the project root. The project root itself is returned as ".".
func (r *Rule) CanonicalDir() string {
	return CleanRelDir(r.CanonicalLocation)
}

// MatchesName reports whether the base name matches any of the rule patterns.
// Malformed patterns never match.
func (r *Rule) MatchesName(base string) bool {
	for _, pattern := range r.Patterns {
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Matches reports whether a project-relative slash path matches the rule:
// name pattern first, then every condition.
func (r *Rule) Matches(relPath string) bool {
	if !r.MatchesName(path.Base(relPath)) {
		return false
	}
	for _, cond := range r.Conditions {
		if !cond.Holds(relPath) {
			return false
		}
	}
	return true
}

// DirectoryRule describes a top-level directory of the canonical structure
type DirectoryRule struct {
	Purpose  string `yaml:"purpose" json:"purpose,omitempty"`
	Required bool   `yaml:"required" json:"required"` // Missing directory is reported as a warning
}

// ForbiddenPattern lists names that must never appear in a location
type ForbiddenPattern struct {
	Location   string   `yaml:"location" json:"location" validate:"required"`
	Patterns   []string `yaml:"patterns" json:"patterns" validate:"required,min=1"`
	Exceptions []string `yaml:"exceptions" json:"exceptions,omitempty"`
	Recursive  bool     `yaml:"recursive" json:"recursive"`
	Message    string   `yaml:"message" json:"message,omitempty"`
}

// Forbids reports whether the base name hits a forbidden pattern and is not excepted
func (f *ForbiddenPattern) Forbids(base string) bool {
	for _, exception := range f.Exceptions {
		if exception == base {
			return false
		}
		if ok, err := path.Match(exception, base); err == nil && ok {
			return false
		}
	}
	for _, pattern := range f.Patterns {
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Settings are the global settings section of the rule configuration
type Settings struct {
	EnforcementMode          EnforcementMode `yaml:"enforcement_mode" json:"enforcement_mode" validate:"omitempty,oneof=strict advisory"`
	CacheTTLSeconds          int             `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds" validate:"gte=0"`
	CacheValidationResults   bool            `yaml:"cache_validation_results" json:"cache_validation_results"`
	BackupBeforeMove         bool            `yaml:"backup_before_move" json:"backup_before_move"`
	RequireConfirmation      bool            `yaml:"require_confirmation" json:"require_confirmation"` // false allows overwriting an existing destination
	QueryMemoryExpert        bool            `yaml:"query_memory_expert" json:"query_memory_expert"`   // Consult the advisory client before remediation moves
	GitCommitArchives        bool            `yaml:"git_commit_archives" json:"git_commit_archives"`
	GitCommitMessageTemplate string          `yaml:"git_commit_message_template" json:"git_commit_message_template"`
	IgnoreDirectories        []string        `yaml:"ignore_directories" json:"ignore_directories,omitempty"`
}

// NewDefaultSettings returns the settings applied before the document is decoded
func NewDefaultSettings() Settings {
	return Settings{
		EnforcementMode:          EnforcementAdvisory,
		CacheTTLSeconds:          3600,
		CacheValidationResults:   true,
		BackupBeforeMove:         true,
		RequireConfirmation:      true,
		QueryMemoryExpert:        true,
		GitCommitArchives:        false,
		GitCommitMessageTemplate: "chore(structure): {action} {count} file(s) on {date}",
	}
}

// Severity derives the violation severity from the enforcement mode
func (s Settings) Severity() Severity {
	if s.EnforcementMode == EnforcementStrict {
		return SeverityError
	}
	return SeverityWarning
}

// Metadata describes the rule document itself
type Metadata struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description,omitempty"`
	LastUpdated string `yaml:"last_updated" json:"last_updated,omitempty"`
}

// Migration is a static from/to relocation used for one-time layout changes.
// From may carry a wildcard in its base name; To is a directory.
type Migration struct {
	From string `yaml:"from" json:"from" validate:"required"`
	To   string `yaml:"to" json:"to" validate:"required"`
}

// RuleSet is the loaded rule configuration. It is immutable for a run.
type RuleSet struct {
	FileTypes         []Rule                   `yaml:"file_types" json:"file_types" validate:"dive"`
	DirectoryRules    map[string]DirectoryRule `yaml:"directory_rules" json:"directory_rules"`
	ForbiddenPatterns []ForbiddenPattern       `yaml:"forbidden_patterns" json:"forbidden_patterns,omitempty" validate:"dive"`
	Settings          Settings                 `yaml:"settings" json:"settings"`
	Metadata          Metadata                 `yaml:"metadata" json:"metadata"`
	Migrations        []Migration              `yaml:"migrations" json:"migrations,omitempty" validate:"dive"`
}

// FirstMatch returns the first rule, in declaration order, matching the path
func (rs *RuleSet) FirstMatch(relPath string) (*Rule, bool) {
	for i := range rs.FileTypes {
		if rs.FileTypes[i].Matches(relPath) {
			return &rs.FileTypes[i], true
		}
	}
	return nil, false
}

// Rule returns the rule with the given name
func (rs *RuleSet) Rule(name string) (*Rule, error) {
	for i := range rs.FileTypes {
		if rs.FileTypes[i].Name == name {
			return &rs.FileTypes[i], nil
		}
	}
	return nil, fmt.Errorf("rule %q not found", name)
}

// CleanRelDir normalises a configured directory to a clean slash path
// relative to the project root ("." for the root itself). It does not
// resolve ".." segments away from the root; callers that touch the
// filesystem must still run the path guard.
func CleanRelDir(dir string) string {
	dir = strings.TrimSpace(strings.ReplaceAll(dir, "\\", "/"))
	if dir == "" {
		return "."
	}
	return path.Clean(strings.TrimPrefix(dir, "./"))
}

// IsUnder reports whether dir equals base or is nested under it.
// Both are clean slash paths relative to the project root.
func IsUnder(dir, base string) bool {
	if base == "." {
		return true
	}
	return dir == base || strings.HasPrefix(dir, base+"/")
}
