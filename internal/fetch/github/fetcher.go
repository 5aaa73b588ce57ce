package github

import (
	"context"
	"path"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/pkg/common/logger"
)

// FetchConfig bounds how much of a repository one scan may pull.
type FetchConfig struct {
	// MaxFiles caps the number of files considered per scan. Exceeding it
	// truncates the scan rather than failing it.
	MaxFiles int

	// MaxFileSize is the per-file size cap in bytes. Oversized files are
	// recorded as skipped, not fetched.
	MaxFileSize int64

	// Concurrency is the number of in-flight content requests.
	Concurrency int
}

// DefaultFetchConfig returns the production fetch bounds.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		MaxFiles:    500,
		MaxFileSize: 1 << 20, // 1 MiB
		Concurrency: 8,
	}
}

// FetchResult is the outcome of retrieving a repository's eligible content.
type FetchResult struct {
	Files []scanning.FileArtifact
	Meta  scanning.FetchMeta
}

// binaryExtensions lists file extensions excluded from analysis. Pattern
// rules only make sense over text.
var binaryExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {},
	".jar": {}, ".war": {}, ".class": {}, ".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".o": {}, ".a": {}, ".wasm": {}, ".bin": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".webm": {}, ".wav": {},
	".pyc": {}, ".db": {}, ".sqlite": {},
}

// Fetcher retrieves a repository's file tree and eligible file bodies with a
// bounded worker pool.
type Fetcher struct {
	client *Client
	config FetchConfig
	log    *logger.Logger
	tracer trace.Tracer
}

// NewFetcher creates a Fetcher on top of the GitHub client.
func NewFetcher(client *Client, config FetchConfig, log *logger.Logger, tracer trace.Tracer) *Fetcher {
	return &Fetcher{
		client: client,
		config: config,
		log:    log.With("component", "github_fetcher"),
		tracer: tracer,
	}
}

// Fetch lists the repository tree, filters candidates, and downloads bodies
// under bounded concurrency. Repository-level failures abort the fetch with a
// tagged error; a single file failing is recorded as skipped and does not
// abort. Cancellation of ctx stops in-flight downloads cooperatively and
// returns the artifacts completed so far with Truncated set.
func (f *Fetcher) Fetch(ctx context.Context, repo scanning.RepoReference, token string) (*FetchResult, error) {
	ctx, span := f.tracer.Start(ctx, "fetcher.fetch",
		trace.WithAttributes(attribute.String("repo", repo.FullName())))
	defer span.End()

	entries, upstreamTruncated, err := f.client.ListTree(ctx, repo, token)
	if err != nil {
		// The scan deadline expiring mid-listing is not an upstream
		// failure: nothing was retrieved, so the result is empty and
		// labeled partial.
		if ctx.Err() != nil {
			return &FetchResult{Meta: scanning.FetchMeta{Truncated: true}}, nil
		}
		return nil, err
	}

	candidates, skipped, capTruncated := f.filter(entries)
	truncated := upstreamTruncated || capTruncated

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("skipped", skipped),
		attribute.Bool("truncated", truncated),
	)

	files := make([]scanning.FileArtifact, 0, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.Concurrency)

	for _, entry := range candidates {
		entry := entry
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			content, err := f.client.GetFileContent(gctx, repo, entry.Path, token, f.config.MaxFileSize)
			if err != nil {
				// Rate-limit exhaustion mid-fetch affects every remaining
				// download; abort instead of burning the rest of the pool.
				if kind := scanning.KindOf(err); kind == scanning.KindUpstreamRateLimited {
					return err
				}
				f.log.Warn(gctx, "skipping file after fetch failure", "path", entry.Path, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			files = append(files, scanning.FileArtifact{
				Path:    entry.Path,
				Size:    entry.Size,
				Content: content,
				// Oversized entries never reach the pool, so hitting the
				// cap means the blob grew past its listed size and the
				// download was clipped.
				Truncated: int64(len(content)) >= f.config.MaxFileSize,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Deadline or caller disconnect: keep what completed. Anything else
		// aborts the scan. In-flight downloads cut off by the deadline come
		// back classified as upstream errors, so the caller's context is the
		// authority here, not the error kind.
		if ctx.Err() == nil && scanning.KindOf(err) != scanning.KindUnknown {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		truncated = true
	}

	return &FetchResult{
		Files: files,
		Meta: scanning.FetchMeta{
			FilesScanned: len(files),
			FilesSkipped: skipped,
			Truncated:    truncated,
		},
	}, nil
}

// filter selects blob entries eligible for analysis, applies the binary and
// size filters, and enforces the per-scan file cap.
func (f *Fetcher) filter(entries []TreeEntry) (candidates []TreeEntry, skipped int, truncated bool) {
	considered := 0
	for _, entry := range entries {
		if entry.Type != "blob" {
			continue
		}
		if considered >= f.config.MaxFiles {
			truncated = true
			break
		}
		considered++

		if isBinaryPath(entry.Path) {
			skipped++
			continue
		}
		if entry.Size > f.config.MaxFileSize {
			skipped++
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates, skipped, truncated
}

func isBinaryPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	_, ok := binaryExtensions[ext]
	return ok
}
