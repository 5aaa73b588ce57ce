// Package api exposes the scanning service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/repoguard/repoguard/internal/api/errs"
	appscanning "github.com/repoguard/repoguard/internal/app/scanning"
	"github.com/repoguard/repoguard/internal/domain/scanning"
	"github.com/repoguard/repoguard/pkg/common/logger"
	"github.com/repoguard/repoguard/pkg/common/otel"
)

// ScanService executes scans. It is satisfied by the scan orchestrator.
type ScanService interface {
	Scan(ctx context.Context, req appscanning.ScanRequest) (*scanning.ScanResult, error)
}

type Server struct {
	build   string
	logger  *logger.Logger
	router  *chi.Mux
	scans   ScanService
	metrics APIMetrics
	tracer  trace.Tracer
}

func NewServer(build string, log *logger.Logger, tracer trace.Tracer, scans ScanService, metrics APIMetrics) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(metricsMiddleware(metrics))
	r.Use(middleware.Recoverer)

	s := &Server{
		build:   build,
		logger:  log,
		router:  r,
		scans:   scans,
		metrics: metrics,
		tracer:  tracer,
	}

	s.routes()
	return s
}

// Handler returns the fully routed HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func metricsMiddleware(metrics APIMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			ctx := r.Context()
			metrics.IncRequestsTotal(ctx, r.Method, r.URL.Path, ww.Status())
			metrics.ObserveRequestDuration(ctx, r.Method, r.URL.Path, time.Since(start))
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Post("/scan", s.handleScan)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "up",
		"build":  s.build,
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// scanRequest is the POST /v1/scan payload.
type scanRequest struct {
	RepoURL     string `json:"repoUrl" validate:"required"`
	GithubToken string `json:"githubToken"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.IncScanRequestsTotal(ctx)

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.failScan(ctx, w, scanning.WrapError(scanning.KindInput, err, "invalid request body"))
		return
	}

	if err := errs.Check(req); err != nil {
		s.failScan(ctx, w, err)
		return
	}

	result, err := s.scans.Scan(ctx, appscanning.ScanRequest{
		RepoURL: req.RepoURL,
		Token:   req.GithubToken,
		Subject: clientIP(r),
	})
	if err != nil {
		s.failScan(ctx, w, err)
		return
	}

	s.metrics.ObserveScanFindings(ctx, len(result.Findings))
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) failScan(ctx context.Context, w http.ResponseWriter, err error) {
	kind := scanning.KindOf(err)
	s.metrics.IncScanRequestErrors(ctx, kind.String())
	s.logger.Error(ctx, "scan request failed", "kind", kind.String(), "error", err)
	errs.Respond(w, err)
}

// clientIP identifies anonymous callers for admission. RealIP middleware has
// already resolved forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
