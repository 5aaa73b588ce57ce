package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/repoguard/repoguard/internal/domain/scanning"
)

//go:embed defaults.yaml
var defaultRuleset []byte

// ruleSpec is the on-disk shape of one rule.
type ruleSpec struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Severity    string   `yaml:"severity"`
	AppliesTo   []string `yaml:"applies_to"`
	Pattern     string   `yaml:"pattern"`
}

// DefaultRegistry builds the registry from the embedded default ruleset.
func DefaultRegistry() (*Registry, error) {
	return parseRegistry(defaultRuleset)
}

// LoadRegistry reads a ruleset file from disk. An empty path falls back to
// the embedded defaults.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Rules []ruleSpec `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset: %w", err)
	}

	specs := doc.Rules
	if len(specs) == 0 {
		return nil, fmt.Errorf("ruleset contains no rules")
	}

	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rules = append(rules, Rule{
			ID:          spec.ID,
			Description: spec.Description,
			Category:    scanning.Category(spec.Category),
			Severity:    scanning.Severity(spec.Severity),
			AppliesTo:   spec.AppliesTo,
			Pattern:     spec.Pattern,
		})
	}

	return NewRegistry(rules)
}
