package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Severity of a violation
type Severity string

// Severity constants
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule name prefixes of violations that do not come from a file_types rule
const (
	ForbiddenRulePrefix = "forbidden:"
	DirectoryRulePrefix = "directory:"
)

// Violation is a mismatch between a file's actual and canonical location, or
// a forbidden-pattern hit. Violations are created fresh per validation pass.
type Violation struct {
	FilePath          string   `json:"file_path"`          // Project-relative slash path
	CurrentLocation   string   `json:"current_location"`   // Directory the file sits in
	CanonicalLocation string   `json:"canonical_location"` // Empty for forbidden-pattern hits
	RuleName          string   `json:"rule_name"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
	FixCommand        string   `json:"fix_command,omitempty"` // Descriptive only, never executed
}

// IsForbidden reports whether the violation came from the forbidden-pattern check
func (v *Violation) IsForbidden() bool {
	return strings.HasPrefix(v.RuleName, ForbiddenRulePrefix)
}

// IsMissingDirectory reports whether the violation is a missing required directory
func (v *Violation) IsMissingDirectory() bool {
	return strings.HasPrefix(v.RuleName, DirectoryRulePrefix)
}

// Destination is the project-relative path the file should move to.
// Forbidden-pattern hits have no destination.
func (v *Violation) Destination() (string, bool) {
	if v.CanonicalLocation == "" || v.IsForbidden() || v.IsMissingDirectory() {
		return "", false
	}
	return path.Join(v.CanonicalLocation, path.Base(v.FilePath)), true
}

// NewLocationViolation builds the violation for a file outside its canonical directory
func NewLocationViolation(relPath string, rule *Rule, severity Severity) *Violation {
	canonical := rule.CanonicalDir()
	dest := path.Join(canonical, path.Base(relPath))
	return &Violation{
		FilePath:          relPath,
		CurrentLocation:   path.Dir(relPath),
		CanonicalLocation: canonical,
		RuleName:          rule.Name,
		Severity:          severity,
		Message:           fmt.Sprintf("%s belongs under %s/ (rule %s)", relPath, canonical, rule.Name),
		FixCommand:        fmt.Sprintf("git mv %q %q", relPath, dest),
	}
}

// NewForbiddenViolation builds the violation for a forbidden-pattern hit
func NewForbiddenViolation(relPath string, fp *ForbiddenPattern) *Violation {
	message := fp.Message
	if message == "" {
		message = fmt.Sprintf("%s is not allowed in %s", path.Base(relPath), CleanRelDir(fp.Location))
	}
	return &Violation{
		FilePath:        relPath,
		CurrentLocation: path.Dir(relPath),
		RuleName:        ForbiddenRulePrefix + CleanRelDir(fp.Location),
		Severity:        SeverityError,
		Message:         message + " - must be reviewed and moved manually",
	}
}

// NewMissingDirectoryViolation reports a required directory that does not exist
func NewMissingDirectoryViolation(dir string, rule DirectoryRule) *Violation {
	message := fmt.Sprintf("required directory %s/ is missing", dir)
	if rule.Purpose != "" {
		message += " (" + rule.Purpose + ")"
	}
	return &Violation{
		FilePath:          dir,
		CurrentLocation:   path.Dir(dir),
		CanonicalLocation: dir,
		RuleName:          DirectoryRulePrefix + dir,
		Severity:          SeverityWarning,
		Message:           message,
		FixCommand:        fmt.Sprintf("mkdir -p %q", dir),
	}
}

// CacheEntry is the cached classification of one path
type CacheEntry struct {
	Fingerprint string      `json:"fingerprint"`
	Violations  []Violation `json:"violations"` // Zero or one entry
}

// CacheSnapshot is the persisted violation cache
type CacheSnapshot struct {
	Timestamp   time.Time             `json:"timestamp"`
	RulesDigest string                `json:"rules_digest,omitempty"` // Rule set the entries were computed under
	Entries     map[string]CacheEntry `json:"entries"`
}

// NewCacheSnapshot returns an empty snapshot stamped with now
func NewCacheSnapshot(now time.Time) *CacheSnapshot {
	return &CacheSnapshot{
		Timestamp: now,
		Entries:   make(map[string]CacheEntry),
	}
}
