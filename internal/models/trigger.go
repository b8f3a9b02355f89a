package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TriggerKind is the parsed variant of a lifecycle trigger
type TriggerKind string

// TriggerKind constants
const (
	TriggerNever     TriggerKind = "never"
	TriggerImmediate TriggerKind = "immediate"
	TriggerAge       TriggerKind = "age"
)

// agePattern matches "age > N days" and "file_age > N days", optionally
// followed by "AND <clause>" segments.
var (
	agePattern = regexp.MustCompile(`(?i)^(?:file_)?age\s*>\s*(\d+)\s*days?$`)
	andPattern = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// Trigger is a lifecycle trigger parsed once at load time.
//
// Compound triggers ("age > 30 days AND task_completed") are evaluated
// permissively: only the age clause is checked and any additional clause is
// treated as satisfied. The extra clauses are kept so reports can show them.
type Trigger struct {
	Kind    TriggerKind
	Days    int
	Clauses []string
	Raw     string
}

// ParseTrigger parses the textual trigger form. Empty input means never.
func ParseTrigger(raw string) (Trigger, error) {
	text := strings.TrimSpace(raw)
	switch strings.ToLower(text) {
	case "", string(TriggerNever):
		return Trigger{Kind: TriggerNever, Raw: text}, nil
	case string(TriggerImmediate):
		return Trigger{Kind: TriggerImmediate, Raw: text}, nil
	}

	parts := andPattern.Split(text, -1)
	m := agePattern.FindStringSubmatch(strings.TrimSpace(parts[0]))
	if m == nil {
		return Trigger{}, fmt.Errorf("unsupported trigger %q (want never, immediate or age > N days [AND ...])", raw)
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid day count in trigger %q: %w", raw, err)
	}

	var clauses []string
	for _, clause := range parts[1:] {
		if clause = strings.TrimSpace(clause); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return Trigger{Kind: TriggerAge, Days: days, Clauses: clauses, Raw: text}, nil
}

// Fires evaluates the trigger for a file last modified at modTime
func (t Trigger) Fires(now, modTime time.Time) bool {
	switch t.Kind {
	case TriggerImmediate:
		return true
	case TriggerAge:
		return now.Sub(modTime) > time.Duration(t.Days)*24*time.Hour
	default:
		return false
	}
}

// IsCompound reports whether the trigger carries clauses beyond the age check
func (t Trigger) IsCompound() bool {
	return len(t.Clauses) > 0
}

// String returns the configured form of the trigger
func (t Trigger) String() string {
	if t.Raw != "" {
		return t.Raw
	}
	switch t.Kind {
	case TriggerAge:
		s := fmt.Sprintf("age > %d days", t.Days)
		for _, clause := range t.Clauses {
			s += " AND " + clause
		}
		return s
	case "":
		return string(TriggerNever)
	default:
		return string(t.Kind)
	}
}

// UnmarshalYAML parses the trigger while the rule document is decoded
func (t *Trigger) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: trigger must be a string: %w", value.Line, err)
	}
	parsed, err := ParseTrigger(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}

// MarshalYAML writes the trigger back in its textual form
func (t Trigger) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// MarshalText lets the trigger appear as a plain string in JSON exports
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses the trigger from JSON exports
func (t *Trigger) UnmarshalText(text []byte) error {
	parsed, err := ParseTrigger(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
