// Package scanning coordinates the scan pipeline: reference resolution,
// admission control, bounded content retrieval, rule evaluation, and result
// aggregation.
package scanning

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/repoguard/repoguard/internal/admission"
	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/internal/fetch/github"
	"github.com/repoguard/repoguard/internal/rules"
	"github.com/repoguard/repoguard/pkg/common/logger"
)

// ContentFetcher retrieves a repository's eligible content. Implemented by
// the GitHub fetcher in production.
type ContentFetcher interface {
	Fetch(ctx context.Context, repo scanning.RepoReference, token string) (*github.FetchResult, error)
}

// ProfileProvider supplies the admission profile for an account. The account
// collaborator implements this from plan-tier data; the pipeline only needs
// the resulting {limit, window} pair.
type ProfileProvider interface {
	ScanProfile(accountID string) admission.Profile
}

// StaticProfile is a ProfileProvider that applies one profile to every
// account. Used when no plan-tier source is wired.
type StaticProfile admission.Profile

// ScanProfile implements ProfileProvider.
func (p StaticProfile) ScanProfile(string) admission.Profile { return admission.Profile(p) }

// ScanRequest carries everything needed to execute one scan.
type ScanRequest struct {
	// RepoURL is the caller-supplied repository locator.
	RepoURL string

	// Token optionally authenticates upstream calls on the caller's behalf.
	Token string

	// Subject identifies the caller for admission (account id, or client IP
	// for anonymous callers).
	Subject string
}

// Config bounds one scan execution.
type Config struct {
	// ScanTimeout is the overall deadline for a single scan. When it fires,
	// the result is built from whatever completed, labeled truncated.
	ScanTimeout time.Duration

	// AnalyzeConcurrency bounds concurrent per-file rule evaluation.
	AnalyzeConcurrency int
}

// DefaultConfig returns the production scan bounds.
func DefaultConfig() Config {
	return Config{
		ScanTimeout:        2 * time.Minute,
		AnalyzeConcurrency: 8,
	}
}

// ScanOrchestrator executes scans end to end. It owns no per-scan state; all
// artifacts and findings are scoped to a single Scan call, so concurrent
// scans share nothing but the admission controller and the upstream limiter.
type ScanOrchestrator struct {
	admission *admission.Controller
	profiles  ProfileProvider
	fetcher   ContentFetcher
	engine    *rules.Engine
	config    Config

	log    *logger.Logger
	tracer trace.Tracer
}

// NewScanOrchestrator wires the pipeline stages together.
func NewScanOrchestrator(
	adm *admission.Controller,
	profiles ProfileProvider,
	fetcher ContentFetcher,
	engine *rules.Engine,
	config Config,
	log *logger.Logger,
	tracer trace.Tracer,
) *ScanOrchestrator {
	return &ScanOrchestrator{
		admission: adm,
		profiles:  profiles,
		fetcher:   fetcher,
		engine:    engine,
		config:    config,
		log:       log.With("component", "scan_orchestrator"),
		tracer:    tracer,
	}
}

// Scan runs the full pipeline for one request. Resolution and admission
// short-circuit before any network call so invalid or over-quota requests
// never consume upstream budget. Errors carry their kind; the transport maps
// kinds to statuses.
func (s *ScanOrchestrator) Scan(ctx context.Context, req ScanRequest) (*scanning.ScanResult, error) {
	ctx, span := s.tracer.Start(ctx, "scan_orchestrator.scan",
		trace.WithAttributes(attribute.String("subject", req.Subject)))
	defer span.End()

	start := time.Now()

	repo := scanning.Resolve(req.RepoURL)
	if repo == nil {
		return nil, scanning.NewError(scanning.KindInput, "invalid repository URL %q", req.RepoURL)
	}
	span.SetAttributes(attribute.String("repo", repo.FullName()))

	decision := s.admission.Check(admission.Key("scan", req.Subject), s.profiles.ScanProfile(req.Subject))
	if !decision.Allowed {
		return nil, &scanning.Error{
			Kind:    scanning.KindQuotaExceeded,
			Message: "scan quota exhausted for this account",
			ResetAt: decision.ResetAt,
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	fetched, err := s.fetcher.Fetch(scanCtx, *repo, req.Token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	findings, deadlineHit := s.analyzeAll(scanCtx, fetched.Files)

	meta := fetched.Meta
	if deadlineHit {
		meta.Truncated = true
	}

	result := Finalize(uuid.New().String(), *repo, findings, meta, start.UTC(), time.Since(start))

	s.log.Info(ctx, "scan complete",
		"scan_id", result.ID,
		"repo", repo.FullName(),
		"files_scanned", result.FilesScanned,
		"files_skipped", result.FilesSkipped,
		"findings", len(result.Findings),
		"truncated", result.Truncated,
		"duration_ms", result.DurationMs,
	)
	span.SetAttributes(
		attribute.Int("findings", len(result.Findings)),
		attribute.Bool("truncated", result.Truncated),
	)

	return &result, nil
}

// analyzeAll evaluates rules over the fetched files with a bounded worker
// pool. Evaluation is CPU-light, so it reuses the same concurrency bound as
// retrieval. When the scan deadline fires mid-analysis, the findings gathered
// so far are kept and the result is labeled truncated.
func (s *ScanOrchestrator) analyzeAll(ctx context.Context, files []scanning.FileArtifact) ([]scanning.Finding, bool) {
	var (
		mu       sync.Mutex
		findings []scanning.Finding
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.AnalyzeConcurrency)

	deadlineHit := false
	for _, file := range files {
		if gctx.Err() != nil {
			deadlineHit = true
			break
		}

		file := file
		g.Go(func() error {
			found := s.engine.Analyze(gctx, file)
			if len(found) == 0 {
				return nil
			}
			mu.Lock()
			findings = append(findings, found...)
			mu.Unlock()
			return nil
		})
	}

	// Workers only return nil; Wait is for draining the pool.
	_ = g.Wait()

	if ctx.Err() != nil {
		deadlineHit = true
	}
	return findings, deadlineHit
}
