package models

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConditionKind is the closed set of extra predicates a rule may carry
type ConditionKind string

// ConditionKind constants
const (
	ConditionParentDirEquals   ConditionKind = "parent_dir_equals"    // Immediate parent directory name equals Value
	ConditionParentDirEndsWith ConditionKind = "parent_dir_ends_with" // Parent directory path ends with Value
	ConditionPathPrefix        ConditionKind = "path_prefix"          // Path lies under directory Value
	ConditionNotPathPrefix     ConditionKind = "not_path_prefix"      // Path does not lie under directory Value
	ConditionPathContains      ConditionKind = "path_contains"        // Relative path contains Value
)

// IsValidConditionKind checks if a given kind is one of the valid constants
func IsValidConditionKind(kind ConditionKind) bool {
	switch kind {
	case ConditionParentDirEquals, ConditionParentDirEndsWith, ConditionPathPrefix,
		ConditionNotPathPrefix, ConditionPathContains:
		return true
	default:
		return false
	}
}

// Condition is a tagged predicate over a project-relative slash path
type Condition struct {
	Kind  ConditionKind `yaml:"kind" json:"kind" validate:"required"`
	Value string        `yaml:"value" json:"value" validate:"required"`
}

// Holds evaluates the condition. Matching is total: every valid kind returns
// a definite answer and unknown kinds never hold.
func (c Condition) Holds(relPath string) bool {
	dir := path.Dir(relPath)
	switch c.Kind {
	case ConditionParentDirEquals:
		return path.Base(dir) == strings.Trim(c.Value, "/")
	case ConditionParentDirEndsWith:
		return strings.HasSuffix(dir, strings.TrimSuffix(c.Value, "/"))
	case ConditionPathPrefix:
		return IsUnder(relPath, CleanRelDir(c.Value))
	case ConditionNotPathPrefix:
		return !IsUnder(relPath, CleanRelDir(c.Value))
	case ConditionPathContains:
		return strings.Contains(relPath, c.Value)
	default:
		return false
	}
}

// conditionNode accepts both the tagged form {kind: ..., value: ...} and the
// single-key shorthand {parent_dir_equals: tests}.
type conditionNode struct {
	Kind  ConditionKind `yaml:"kind"`
	Value string        `yaml:"value"`
}

// UnmarshalYAML decodes a condition and rejects kinds outside the closed set
func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	var node conditionNode
	if err := value.Decode(&node); err != nil {
		return fmt.Errorf("line %d: invalid condition: %w", value.Line, err)
	}

	if node.Kind == "" {
		var short map[string]string
		if err := value.Decode(&short); err != nil || len(short) != 1 {
			return fmt.Errorf("line %d: condition needs kind and value", value.Line)
		}
		for k, v := range short {
			node.Kind, node.Value = ConditionKind(k), v
		}
	}

	if !IsValidConditionKind(node.Kind) {
		return fmt.Errorf("line %d: unknown condition kind %q", value.Line, node.Kind)
	}
	c.Kind, c.Value = node.Kind, node.Value
	return nil
}
