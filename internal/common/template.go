// Package common provides configuration, logging and small helpers shared by
// the canon services.
//
// Placeholder syntax: {name}. Commit message templates reference run values
// the same way:
//   Template: "chore(structure): {action} {count} file(s) on {date}"
//   Values:   {"action": "relocate", "count": "3", "date": "2026-10-16"}
//   Output:   "chore(structure): relocate 3 file(s) on 2026-10-16"
//
// Unknown placeholders are left unchanged and logged as warnings.
package common

import (
	"regexp"

	"github.com/ternarybob/arbor"
)

// placeholderPattern matches {name} references.
// Allows alphanumeric characters, hyphens, and underscores
var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// RenderTemplate replaces every {name} in tmpl with values[name]
func RenderTemplate(tmpl string, values map[string]string, logger arbor.ILogger) string {
	if tmpl == "" {
		return tmpl
	}

	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		if value, exists := values[name]; exists {
			return value
		}
		if logger != nil {
			logger.Warn().
				Str("placeholder", match).
				Msg("Unresolved template placeholder")
		}
		return match
	})
}

// Placeholders returns the distinct placeholder names used by tmpl, in order
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if len(match) > 1 && !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}
