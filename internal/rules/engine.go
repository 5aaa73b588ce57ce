package rules

import (
	"bytes"
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/pkg/common/logger"
)

const (
	// defaultEvalBudget bounds a single (rule, file) evaluation. A pattern
	// that blows the budget loses its findings for that file; the file and
	// the scan continue.
	defaultEvalBudget = 250 * time.Millisecond

	// maxSnippetLen caps non-secret snippets included in findings.
	maxSnippetLen = 120

	// revealSuffixLen is how many trailing characters of a secret match stay
	// readable for operator verification.
	revealSuffixLen = 4
)

// Engine evaluates the rule registry against file artifacts. It is stateless
// across files and safe for concurrent use; all mutable state is local to a
// single Analyze call.
type Engine struct {
	registry   *Registry
	evalBudget time.Duration
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewEngine creates an engine over an immutable registry.
func NewEngine(registry *Registry, log *logger.Logger, tracer trace.Tracer) *Engine {
	return &Engine{
		registry:   registry,
		evalBudget: defaultEvalBudget,
		log:        log.With("component", "rule_engine"),
		tracer:     tracer,
	}
}

// Analyze runs every applicable rule against the file and returns one finding
// per match occurrence. Matching is line-scoped; line and column are 1-based
// and computed from byte offsets.
func (e *Engine) Analyze(ctx context.Context, file scanning.FileArtifact) []scanning.Finding {
	ctx, span := e.tracer.Start(ctx, "rule_engine.analyze",
		trace.WithAttributes(
			attribute.String("path", file.Path),
			attribute.Int("size", len(file.Content)),
		))
	defer span.End()

	applicable := e.registry.For(file.Path)
	if len(applicable) == 0 {
		return nil
	}

	lines := bytes.Split(file.Content, []byte("\n"))

	var findings []scanning.Finding
	for _, rule := range applicable {
		matches, err := e.evaluate(ctx, rule, lines)
		if err != nil {
			// Per-evaluation failure is soft: log it and move to the next
			// rule without failing the file or the scan.
			e.log.Error(ctx, "rule evaluation aborted",
				"rule_id", rule.ID, "path", file.Path, "error", err)
			span.AddEvent("evaluation_aborted", trace.WithAttributes(
				attribute.String("rule_id", rule.ID),
			))
			continue
		}

		for _, m := range matches {
			findings = append(findings, scanning.Finding{
				RuleID:   rule.ID,
				Path:     file.Path,
				Line:     m.line,
				Column:   m.column,
				Snippet:  snippetFor(rule, m.text),
				Severity: rule.Severity,
				Category: rule.Category,
			})
		}
	}

	span.SetAttributes(attribute.Int("findings", len(findings)))
	return findings
}

type match struct {
	line   int
	column int
	text   string
}

// evaluate runs one rule over all lines under the evaluation budget. The
// matcher runs on its own goroutine; if the budget elapses first the partial
// result is discarded and the abandoned goroutine finishes on its own.
func (e *Engine) evaluate(ctx context.Context, rule Rule, lines [][]byte) ([]match, error) {
	done := make(chan []match, 1)

	go func() {
		var matches []match
		for i, line := range lines {
			for _, loc := range rule.matcher.FindAllIndex(line, -1) {
				matches = append(matches, match{
					line:   i + 1,
					column: loc[0] + 1,
					text:   string(line[loc[0]:loc[1]]),
				})
			}
		}
		done <- matches
	}()

	timer := time.NewTimer(e.evalBudget)
	defer timer.Stop()

	select {
	case matches := <-done:
		return matches, nil
	case <-timer.C:
		return nil, scanning.NewError(scanning.KindEngine,
			"rule %s exceeded evaluation budget of %s", rule.ID, e.evalBudget)
	case <-ctx.Done():
		return nil, scanning.WrapError(scanning.KindEngine, ctx.Err(),
			"rule %s evaluation cancelled", rule.ID)
	}
}

// snippetFor builds the stored snippet for a match. Secret matches are
// redacted so only a short, non-reversible suffix remains readable.
func snippetFor(rule Rule, text string) string {
	if rule.Category == scanning.CategorySecret {
		return redact(text)
	}
	if len(text) > maxSnippetLen {
		return text[:maxSnippetLen]
	}
	return text
}

// redact masks a matched secret, keeping at most the last revealSuffixLen
// characters. Short matches are masked entirely.
func redact(secret string) string {
	if len(secret) <= revealSuffixLen {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-revealSuffixLen) + secret[len(secret)-revealSuffixLen:]
}
