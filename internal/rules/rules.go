// Package rules provides the detection rule registry and the engine that
// evaluates rules against fetched file content. Detection capability lives
// entirely in registry data; adding or removing a rule never touches the
// engine's control flow.
package rules

import (
	"fmt"
	"path"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/repoguard/repoguard/internal/domain/scanning"
)

// Rule is a single stateless detection pattern. Rules are immutable and are
// loaded once at process start into a read-only Registry.
type Rule struct {
	// ID uniquely identifies the rule, e.g. "aws-access-key-id".
	ID string

	// Description explains what the rule detects.
	Description string

	// Category classifies the finding the rule produces.
	Category scanning.Category

	// Severity is attached to every finding the rule produces.
	Severity scanning.Severity

	// AppliesTo holds file glob patterns ("*.py", "Dockerfile",
	// "config/*.yml"). Empty means the rule applies to every file.
	AppliesTo []string

	// Pattern is the rule's matcher source.
	Pattern string

	matcher *regexp.Regexp
}

// compile validates the rule and builds its matcher.
func (r *Rule) compile() error {
	if r.ID == "" {
		return fmt.Errorf("rule is missing an id")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("rule %s: unknown category %q", r.ID, r.Category)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: unknown severity %q", r.ID, r.Severity)
	}

	matcher, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("rule %s: compiling pattern: %w", r.ID, err)
	}
	r.matcher = matcher
	return nil
}

// AppliesToPath reports whether the rule should run against the given
// repository path. Patterns without a separator match the base name, so
// "*.py" applies anywhere in the tree.
func (r *Rule) AppliesToPath(filePath string) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}

	base := path.Base(filePath)
	for _, pattern := range r.AppliesTo {
		var matched bool
		if strings.Contains(pattern, "/") {
			matched, _ = path.Match(pattern, filePath)
		} else {
			matched, _ = path.Match(pattern, base)
		}
		if matched {
			return true
		}
	}
	return false
}

// Registry is an immutable set of compiled rules. It is safe for concurrent
// use once built.
type Registry struct {
	rules []Rule
}

// NewRegistry compiles the given rules into a registry. Duplicate rule ids
// and invalid patterns are rejected; a registry is either fully valid or not
// built at all.
func NewRegistry(rules []Rule) (*Registry, error) {
	seen := make(map[string]struct{}, len(rules))
	compiled := make([]Rule, len(rules))

	for i, rule := range rules {
		if err := rule.compile(); err != nil {
			return nil, err
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
		compiled[i] = rule
	}

	return &Registry{rules: compiled}, nil
}

// Len returns the number of rules in the registry.
func (reg *Registry) Len() int { return len(reg.rules) }

// For returns the rules applicable to the given path.
func (reg *Registry) For(filePath string) []Rule {
	var applicable []Rule
	for _, rule := range reg.rules {
		if rule.AppliesToPath(filePath) {
			applicable = append(applicable, rule)
		}
	}
	return applicable
}
