package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/models"
)

// StructValidator is the schema validator contract. *validator.Validate
// satisfies it.
type StructValidator interface {
	Struct(s interface{}) error
}

// ValidationResult contains the result of rule set validation
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues,omitempty"`   // Problems that make the rule set unusable
	Warnings []string `json:"warnings,omitempty"` // Legal but suspicious configuration
	Degraded bool     `json:"degraded"`           // Structural checks only, schema validator unavailable
}

// Validator checks a loaded rule set. Validation is advisory: callers log the
// result and decide whether to continue.
type Validator struct {
	schema StructValidator
	logger arbor.ILogger
}

// NewValidator creates a validator backed by go-playground/validator
func NewValidator(logger arbor.ILogger) *Validator {
	return NewValidatorWith(validator.New(), logger)
}

// NewValidatorWith creates a validator with a specific schema validator.
// A nil schema validator degrades to structural checks.
func NewValidatorWith(schema StructValidator, logger arbor.ILogger) *Validator {
	return &Validator{schema: schema, logger: logger}
}

// Validate checks each rule has the minimum required fields plus the
// semantic checks shared by both modes
func (v *Validator) Validate(rs *models.RuleSet) ValidationResult {
	var result ValidationResult
	if rs == nil {
		return ValidationResult{Valid: false, Issues: []string{"rule set is nil"}}
	}

	schemaIssues, ok := v.schemaCheck(rs)
	if ok {
		result.Issues = append(result.Issues, schemaIssues...)
	} else {
		result.Degraded = true
		result.Issues = append(result.Issues, structuralCheck(rs)...)
		v.logger.Warn().Msg("Schema validator unavailable, using structural rule checks")
	}

	result.Warnings = semanticWarnings(rs)
	result.Valid = len(result.Issues) == 0
	return result
}

// schemaCheck runs the schema validator. ok is false when no usable
// validator is configured.
func (v *Validator) schemaCheck(rs *models.RuleSet) (issues []string, ok bool) {
	if v.schema == nil {
		return nil, false
	}

	err := v.schema.Struct(rs)
	if err == nil {
		return nil, true
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil, false
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, fe := range fieldErrors {
			issues = append(issues, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return issues, true
	}

	return []string{err.Error()}, true
}

// structuralCheck is the fallback when no schema validator is available
func structuralCheck(rs *models.RuleSet) []string {
	var issues []string
	for i, rule := range rs.FileTypes {
		label := fmt.Sprintf("file_types[%d]", i)
		if rule.Name == "" {
			issues = append(issues, label+": name is required")
		} else {
			label = fmt.Sprintf("file_types[%d] (%s)", i, rule.Name)
		}
		if len(rule.Patterns) == 0 {
			issues = append(issues, label+": at least one pattern is required")
		}
		if strings.TrimSpace(rule.CanonicalLocation) == "" {
			issues = append(issues, label+": canonical_location is required")
		}
		if !models.IsValidLifecycleAction(rule.Lifecycle.Action) {
			issues = append(issues, fmt.Sprintf("%s: unknown lifecycle action %q", label, rule.Lifecycle.Action))
		}
	}
	for i, fp := range rs.ForbiddenPatterns {
		if fp.Location == "" {
			issues = append(issues, fmt.Sprintf("forbidden_patterns[%d]: location is required", i))
		}
		if len(fp.Patterns) == 0 {
			issues = append(issues, fmt.Sprintf("forbidden_patterns[%d]: at least one pattern is required", i))
		}
	}
	for i, m := range rs.Migrations {
		if m.From == "" || m.To == "" {
			issues = append(issues, fmt.Sprintf("migrations[%d]: from and to are required", i))
		}
	}
	return issues
}

// semanticWarnings flags configuration that loads but will not behave as written
func semanticWarnings(rs *models.RuleSet) []string {
	var warnings []string
	for _, rule := range rs.FileTypes {
		if rule.HasFixedHome() && strings.Contains(rule.CanonicalLocation, "..") {
			warnings = append(warnings, fmt.Sprintf("rule %s: canonical_location %q contains '..'; moves outside the project are refused", rule.Name, rule.CanonicalLocation))
		}
		if rule.Lifecycle.Action != "" && rule.Lifecycle.Action != models.ActionKeep && rule.Lifecycle.Trigger.Kind == "" {
			warnings = append(warnings, fmt.Sprintf("rule %s: action %s has no trigger and never fires", rule.Name, rule.Lifecycle.Action))
		}
		if rule.Lifecycle.Trigger.IsCompound() {
			warnings = append(warnings, fmt.Sprintf("rule %s: compound trigger %q is evaluated on its age clause only", rule.Name, rule.Lifecycle.Trigger.String()))
		}
		if rule.Lifecycle.Action == models.ActionDelete {
			warnings = append(warnings, fmt.Sprintf("rule %s: delete only applies to temporary-file names; other matches are refused", rule.Name))
		}
	}
	return warnings
}
