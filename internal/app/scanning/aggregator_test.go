package scanning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoguard/repoguard/internal/domain/scanning"
)

func testRepo() scanning.RepoReference {
	return scanning.NewRepoReference("acme", "widgets", "")
}

func TestFinalize_DedupesSameRulePathLine(t *testing.T) {
	t.Parallel()

	f := scanning.Finding{
		RuleID: "weak-hash", Path: "auth.py", Line: 10, Column: 5,
		Severity: scanning.SeverityMedium, Category: scanning.CategoryWeakCrypto,
	}

	// Duplicate evaluation passes over the same byte range collapse to one.
	result := Finalize("scan-1", testRepo(), []scanning.Finding{f, f, f},
		scanning.FetchMeta{FilesScanned: 1}, time.Now(), time.Second)

	assert.Len(t, result.Findings, 1)
	assert.Equal(t, 1, result.Summary[scanning.SeverityMedium])
}

func TestFinalize_NeverMergesAcrossPaths(t *testing.T) {
	t.Parallel()

	a := scanning.Finding{RuleID: "weak-hash", Path: "a.py", Line: 10, Severity: scanning.SeverityMedium}
	b := scanning.Finding{RuleID: "weak-hash", Path: "b.py", Line: 10, Severity: scanning.SeverityMedium}

	result := Finalize("scan-1", testRepo(), []scanning.Finding{a, b},
		scanning.FetchMeta{FilesScanned: 2}, time.Now(), time.Second)

	assert.Len(t, result.Findings, 2,
		"findings differing only by path must not be merged")
}

func TestFinalize_Ordering(t *testing.T) {
	t.Parallel()

	findings := []scanning.Finding{
		{RuleID: "r1", Path: "z.go", Line: 3, Severity: scanning.SeverityLow},
		{RuleID: "r2", Path: "b.go", Line: 9, Severity: scanning.SeverityCritical},
		{RuleID: "r3", Path: "a.go", Line: 5, Severity: scanning.SeverityCritical},
		{RuleID: "r4", Path: "a.go", Line: 2, Severity: scanning.SeverityCritical},
		{RuleID: "r5", Path: "m.go", Line: 1, Severity: scanning.SeverityInfo},
	}

	result := Finalize("scan-1", testRepo(), findings,
		scanning.FetchMeta{}, time.Now(), time.Second)

	var got []string
	for _, f := range result.Findings {
		got = append(got, f.RuleID)
	}
	assert.Equal(t, []string{"r4", "r3", "r2", "r1", "r5"}, got,
		"severity desc, then path asc, then line asc")
}

func TestFinalize_Summary(t *testing.T) {
	t.Parallel()

	findings := []scanning.Finding{
		{RuleID: "r1", Path: "a", Line: 1, Severity: scanning.SeverityCritical},
		{RuleID: "r2", Path: "a", Line: 2, Severity: scanning.SeverityCritical},
		{RuleID: "r3", Path: "a", Line: 3, Severity: scanning.SeverityHigh},
		{RuleID: "r4", Path: "a", Line: 4, Severity: scanning.SeverityInfo},
	}

	result := Finalize("scan-1", testRepo(), findings,
		scanning.FetchMeta{FilesScanned: 1, FilesSkipped: 2, Truncated: true}, time.Now(), time.Second)

	assert.Equal(t, 2, result.Summary[scanning.SeverityCritical])
	assert.Equal(t, 1, result.Summary[scanning.SeverityHigh])
	assert.Equal(t, 1, result.Summary[scanning.SeverityInfo])
	assert.Zero(t, result.Summary[scanning.SeverityMedium])

	// Fetch metadata passes through untouched.
	assert.Equal(t, 1, result.FilesScanned)
	assert.Equal(t, 2, result.FilesSkipped)
	assert.True(t, result.Truncated)
}

func TestFinalize_Deterministic(t *testing.T) {
	t.Parallel()

	findings := []scanning.Finding{
		{RuleID: "r1", Path: "b.go", Line: 2, Severity: scanning.SeverityHigh},
		{RuleID: "r2", Path: "a.go", Line: 7, Severity: scanning.SeverityHigh},
		{RuleID: "r1", Path: "b.go", Line: 2, Severity: scanning.SeverityHigh},
	}

	first := Finalize("id", testRepo(), findings, scanning.FetchMeta{}, time.Unix(0, 0), time.Second)
	second := Finalize("id", testRepo(), findings, scanning.FetchMeta{}, time.Unix(0, 0), time.Second)

	require.Equal(t, first.Findings, second.Findings,
		"identical inputs must reproduce an identical findings sequence")
	assert.Equal(t, first.Summary, second.Summary)
}
