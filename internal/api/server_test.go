package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	appscanning "github.com/repoguard/repoguard/internal/app/scanning"
	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/pkg/common/logger"
)

type stubScans struct {
	result *scanning.ScanResult
	err    error
	got    appscanning.ScanRequest
	calls  int
}

func (s *stubScans) Scan(ctx context.Context, req appscanning.ScanRequest) (*scanning.ScanResult, error) {
	s.calls++
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(t *testing.T, scans ScanService) *Server {
	t.Helper()

	metrics, err := NewAPIMetrics(noop.NewMeterProvider())
	require.NoError(t, err)

	return NewServer("test", logger.Noop(), tracenoop.NewTracerProvider().Tracer("test"), scans, metrics)
}

func postScan(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.7:52011"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleScan_Success(t *testing.T) {
	t.Parallel()

	scans := &stubScans{result: &scanning.ScanResult{
		ID:   "scan-1",
		Repo: scanning.NewRepoReference("acme", "widgets", ""),
		Findings: []scanning.Finding{
			{RuleID: "github-token", Path: "config.env", Line: 3, Severity: scanning.SeverityCritical, Category: scanning.CategorySecret},
		},
		Summary:      map[scanning.Severity]int{scanning.SeverityCritical: 1},
		FilesScanned: 12,
	}}

	rec := postScan(t, newTestServer(t, scans),
		`{"repoUrl": "https://github.com/acme/widgets", "githubToken": "ghp_request"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "scan-1", body["id"])

	assert.Equal(t, "https://github.com/acme/widgets", scans.got.RepoURL)
	assert.Equal(t, "ghp_request", scans.got.Token)
	assert.Equal(t, "203.0.113.7", scans.got.Subject, "anonymous callers are admitted by client IP")
}

func TestHandleScan_MalformedBody(t *testing.T) {
	t.Parallel()

	scans := &stubScans{}
	rec := postScan(t, newTestServer(t, scans), `{"repoUrl": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, scans.calls)
}

func TestHandleScan_MissingRepoURL(t *testing.T) {
	t.Parallel()

	scans := &stubScans{}
	rec := postScan(t, newTestServer(t, scans), `{"githubToken": "ghp_x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, scans.calls)
}

func TestHandleScan_ErrorStatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid reference", scanning.NewError(scanning.KindInput, "unsupported repository URL"), http.StatusBadRequest},
		{"private repo", scanning.NewError(scanning.KindAccess, "repository is private or does not exist"), http.StatusNotFound},
		{"local quota", scanning.NewError(scanning.KindQuotaExceeded, "scan quota exceeded"), http.StatusTooManyRequests},
		{"upstream rate limit", scanning.NewError(scanning.KindUpstreamRateLimited, "hosting provider API rate limit exceeded"), http.StatusTooManyRequests},
		{"upstream down", scanning.NewError(scanning.KindUpstreamUnavailable, "provider returned status 502"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := postScan(t, newTestServer(t, &stubScans{err: tt.err}),
				`{"repoUrl": "https://github.com/acme/widgets"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleScan_QuotaResponseIncludesResetAt(t *testing.T) {
	t.Parallel()

	scans := &stubScans{err: &scanning.Error{
		Kind:    scanning.KindQuotaExceeded,
		Message: "scan quota exceeded",
		ResetAt: time.Now().Add(time.Minute),
	}}

	rec := postScan(t, newTestServer(t, scans), `{"repoUrl": "https://github.com/acme/widgets"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "resetAt")
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubScans{})

	for _, path := range []string{"/v1/health", "/v1/readiness"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
