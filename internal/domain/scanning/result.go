package scanning

import "time"

// FetchMeta carries fetch-stage bookkeeping into the final result.
type FetchMeta struct {
	// FilesScanned is the number of files whose bodies were retrieved and
	// analyzed.
	FilesScanned int

	// FilesSkipped counts files excluded by filters or lost to soft per-file
	// failures.
	FilesSkipped int

	// Truncated is set when the listing hit the file cap or the scan deadline
	// cut retrieval short.
	Truncated bool
}

// ScanResult is the immutable report produced for one scan. Findings are
// ordered by severity descending, then path ascending, then line ascending,
// so re-running a scan against unchanged content yields byte-identical
// findings output.
type ScanResult struct {
	ID           string           `json:"id"`
	Repo         RepoReference    `json:"repo"`
	Findings     []Finding        `json:"findings"`
	Summary      map[Severity]int `json:"summary"`
	FilesScanned int              `json:"filesScanned"`
	FilesSkipped int              `json:"filesSkipped"`
	Truncated    bool             `json:"truncated"`
	ScannedAt    time.Time        `json:"scannedAt"`
	DurationMs   int64            `json:"durationMs"`
}
