package scanning

// FileArtifact is a file retrieved from the remote repository for analysis.
// An artifact is owned exclusively by the scan that fetched it and is
// discarded once the scan's result has been built; it is never shared across
// concurrent scans.
type FileArtifact struct {
	// Path is the file's path within the repository tree.
	Path string

	// Size is the file size in bytes as reported by the listing. Content may
	// be shorter when Truncated is set.
	Size int64

	// Content holds the file body.
	Content []byte

	// Truncated indicates the body was cut at the per-file cap.
	Truncated bool
}
