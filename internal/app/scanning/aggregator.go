package scanning

import (
	"sort"
	"time"

	"github.com/repoguard/repoguard/internal/domain/scanning"
)

// findingKey identifies a finding for deduplication. Two findings are
// duplicates only when rule, path, and line all agree; findings that differ
// by path are never merged.
type findingKey struct {
	ruleID string
	path   string
	line   int
}

// Finalize merges, deduplicates, orders, and summarizes findings into the
// immutable scan result. It performs no I/O and is deterministic given
// identical findings input, so re-running a scan against unchanged content
// reproduces an identical findings sequence.
func Finalize(
	id string,
	repo scanning.RepoReference,
	findings []scanning.Finding,
	meta scanning.FetchMeta,
	scannedAt time.Time,
	duration time.Duration,
) scanning.ScanResult {
	deduped := dedupe(findings)

	sort.SliceStable(deduped, func(i, j int) bool {
		a, b := deduped[i], deduped[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})

	summary := make(map[scanning.Severity]int, 5)
	for _, f := range deduped {
		summary[f.Severity]++
	}

	return scanning.ScanResult{
		ID:           id,
		Repo:         repo,
		Findings:     deduped,
		Summary:      summary,
		FilesScanned: meta.FilesScanned,
		FilesSkipped: meta.FilesSkipped,
		Truncated:    meta.Truncated,
		ScannedAt:    scannedAt,
		DurationMs:   duration.Milliseconds(),
	}
}

// dedupe collapses findings identical in (ruleID, path, line), keeping the
// first occurrence. Duplicates arise when the same byte range is evaluated
// more than once, never across files.
func dedupe(findings []scanning.Finding) []scanning.Finding {
	seen := make(map[findingKey]struct{}, len(findings))
	out := make([]scanning.Finding, 0, len(findings))

	for _, f := range findings {
		key := findingKey{ruleID: f.RuleID, path: f.Path, line: f.Line}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}
