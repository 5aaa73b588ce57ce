package scanning

// Severity ranks how serious a finding is. The ordinal ordering
// (critical > high > medium > low > info) drives result sorting and the
// per-severity summary buckets.
type Severity string

// The set of supported severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank returns the sort position for the severity, critical first. Unknown
// severities sort after info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Valid reports whether the severity is one of the supported values.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Category classifies the kind of issue a rule detects.
type Category string

// The set of supported rule categories.
const (
	CategorySecret       Category = "secret"
	CategoryInsecureCall Category = "insecure-call"
	CategoryWeakCrypto   Category = "weak-crypto"
	CategoryMisconfig    Category = "misconfig"
)

// Valid reports whether the category is one of the supported values.
func (c Category) Valid() bool {
	switch c {
	case CategorySecret, CategoryInsecureCall, CategoryWeakCrypto, CategoryMisconfig:
		return true
	}
	return false
}

// Finding is a single detected issue, produced by exactly one (rule, file)
// pairing. Secret findings carry a redacted snippet that retains at most a
// short suffix of the matched value.
type Finding struct {
	RuleID   string   `json:"ruleId"`
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Snippet  string   `json:"redactedSnippet"`
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
}
