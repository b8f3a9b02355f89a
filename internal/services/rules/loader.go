// -----------------------------------------------------------------------
// Package rules loads and validates the canonical structure rule set
// -----------------------------------------------------------------------

package rules

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ternarybob/canon/internal/models"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the rule configuration at path. Every failure is a
// *models.ConfigError.
func Load(path string) (*models.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigError{Path: path, Err: err}
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, &models.ConfigError{Path: path, Err: err}
	}
	return rs, nil
}

// Parse decodes a rule document. Settings not present in the document keep
// their defaults. Unknown trigger forms and condition kinds are rejected here
// so matching is total at run time.
func Parse(data []byte) (*models.RuleSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("rule configuration is empty")
	}

	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse rule configuration: %w", err)
	}
	var missing []string
	for _, name := range models.RequiredSections {
		if _, ok := sections[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required sections: %v", missing)
	}

	rs := &models.RuleSet{
		Settings: models.NewDefaultSettings(),
	}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("failed to decode rule configuration: %w", err)
	}

	if rs.DirectoryRules == nil {
		rs.DirectoryRules = make(map[string]models.DirectoryRule)
	}
	if rs.Settings.EnforcementMode == "" {
		rs.Settings.EnforcementMode = models.EnforcementAdvisory
	}

	seen := make(map[string]bool, len(rs.FileTypes))
	for _, rule := range rs.FileTypes {
		if rule.Name != "" && seen[rule.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true
	}

	return rs, nil
}
