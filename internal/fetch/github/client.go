// Package github retrieves repository content through the GitHub REST API
// under bounded concurrency and upstream rate awareness. It is the only
// package that talks to the hosting provider.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/pkg/common"
)

const (
	defaultBaseURL = "https://api.github.com"

	// requestTimeout bounds every single outbound call. The overall scan
	// deadline is enforced separately by the caller's context.
	requestTimeout = 15 * time.Second

	// maxRetries bounds retry attempts for transient upstream failures.
	// Rate-limit and access failures are never retried.
	maxRetries = 2
)

// Client is a GitHub REST client with rate limiting and tagged error
// classification. All methods honor the provided context for cancellation.
type Client struct {
	httpClient  *http.Client
	rateLimiter *common.RateLimiter
	baseURL     string

	// serviceToken is the shared service-level token used when a request does
	// not carry its own. Empty means unauthenticated fallback.
	serviceToken string

	tracer trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host, e.g. a GitHub
// Enterprise installation or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithRateLimit overrides the initial requests-per-second budget.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.rateLimiter = common.NewRateLimiter(rps, burst) }
}

// NewClient creates a GitHub client. GitHub allows 5000 requests/hour for
// authenticated clients; the limiter starts at a conservative 1.25/second and
// tightens itself from quota headers as responses come back.
func NewClient(httpClient *http.Client, serviceToken string, tracer trace.Tracer, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	c := &Client{
		httpClient:   httpClient,
		rateLimiter:  common.NewRateLimiter(1.25, 5),
		baseURL:      defaultBaseURL,
		serviceToken: serviceToken,
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TreeEntry is one entry from the repository tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type treeResponse struct {
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// ListTree lists the repository's full file tree for the reference's ref
// (HEAD when unset). The returned bool reports whether GitHub itself
// truncated the listing.
func (c *Client) ListTree(ctx context.Context, repo scanning.RepoReference, token string) ([]TreeEntry, bool, error) {
	ctx, span := c.tracer.Start(ctx, "github.list_tree",
		trace.WithAttributes(
			attribute.String("repo", repo.FullName()),
			attribute.String("ref", repo.Ref()),
		))
	defer span.End()

	ref := repo.Ref()
	if ref == "" {
		ref = "HEAD"
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, repo.Owner(), repo.Name(), url.PathEscape(ref))

	body, err := c.get(ctx, endpoint, token, "application/vnd.github+json")
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("listing tree for %s: %w", repo.FullName(), err)
	}

	var resp treeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, scanning.WrapError(scanning.KindUpstreamUnavailable, err,
			"decoding tree listing for %s", repo.FullName())
	}

	span.SetAttributes(
		attribute.Int("entries", len(resp.Tree)),
		attribute.Bool("upstream_truncated", resp.Truncated),
	)
	return resp.Tree, resp.Truncated, nil
}

// GetFileContent downloads one file body via the contents endpoint using the
// raw media type. Size filtering happens before this call; the reader here
// only guards against a listing/content mismatch.
func (c *Client) GetFileContent(ctx context.Context, repo scanning.RepoReference, path string, token string, maxBytes int64) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "github.get_file_content",
		trace.WithAttributes(
			attribute.String("repo", repo.FullName()),
			attribute.String("path", path),
		))
	defer span.End()

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, repo.Owner(), repo.Name(), escapePath(path))
	if ref := repo.Ref(); ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	body, err := c.getLimited(ctx, endpoint, token, "application/vnd.github.raw+json", maxBytes)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching %s from %s: %w", path, repo.FullName(), err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint, token, accept string) ([]byte, error) {
	return c.getLimited(ctx, endpoint, token, accept, 0)
}

// getLimited performs a GET with rate limiting, per-call timeout, and bounded
// retries for transient failures only.
func (c *Client) getLimited(ctx context.Context, endpoint, token, accept string, maxBytes int64) ([]byte, error) {
	var body []byte

	operation := func() error {
		var err error
		body, err = c.doOnce(ctx, endpoint, token, accept, maxBytes)
		if err != nil && !scanning.KindOf(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(expBackoff, maxRetries), ctx)); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) doOnce(ctx context.Context, endpoint, token, accept string, maxBytes int64) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, scanning.WrapError(scanning.KindUpstreamUnavailable, err, "waiting for rate limiter")
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, scanning.WrapError(scanning.KindUnknown, err, "building request")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if tok := c.resolveToken(token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, scanning.WrapError(scanning.KindUpstreamUnavailable, err, "request timed out")
		}
		return nil, scanning.WrapError(scanning.KindUpstreamUnavailable, err, "request failed")
	}
	defer resp.Body.Close()

	c.adaptLimits(resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, scanning.WrapError(scanning.KindUpstreamUnavailable, err, "reading response body")
	}
	return body, nil
}

// resolveToken applies the token precedence: caller-supplied, then the shared
// service token, then anonymous.
func (c *Client) resolveToken(requestToken string) string {
	if requestToken != "" {
		return requestToken
	}
	return c.serviceToken
}

// classifyStatus tags a non-200 response with the precise error kind at the
// point of failure, so no layer above ever inspects message text.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return scanning.NewError(scanning.KindAccess, "repository is private or does not exist")

	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		if isRateLimited(resp) {
			return scanning.NewError(scanning.KindUpstreamRateLimited,
				"hosting provider API rate limit exceeded")
		}
		return scanning.NewError(scanning.KindAccess, "access to repository denied")

	case resp.StatusCode >= 500:
		return scanning.NewError(scanning.KindUpstreamUnavailable,
			"hosting provider returned status %d", resp.StatusCode)

	default:
		return scanning.NewError(scanning.KindUnknown,
			"unexpected status %d from hosting provider", resp.StatusCode)
	}
}

// isRateLimited distinguishes quota exhaustion from plain 403 denials using
// the provider's rate-limit headers.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "0" {
		return true
	}
	return resp.Header.Get("Retry-After") != ""
}

// adaptLimits feeds the provider's remaining-quota headers back into the
// limiter so an anonymous client slows down before exhausting its budget.
func (c *Client) adaptLimits(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	resetUnix, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}

	window := time.Until(time.Unix(resetUnix, 0))
	if window <= 0 || remaining <= 0 {
		return
	}

	rps := float64(remaining) / window.Seconds()
	if rps < c.rateLimiter.Limit() {
		c.rateLimiter.UpdateLimits(rps, 1)
	}
}

// escapePath percent-escapes each path segment while preserving separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
