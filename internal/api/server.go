// Package api serves reports, diffs, scans and the rule catalogue over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ksj/cloud-doctor/internal/diff"
	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/metrics"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/rules"
	"github.com/ksj/cloud-doctor/internal/store"
)

// Scanner starts scans and reports their status. *engine.Engine
// implements it.
type Scanner interface {
	StartScan(ctx context.Context, req engine.ScanRequest) (models.Scan, error)
	Scan(id string) (models.Scan, error)
	Rules() []rules.Rule
}

// Options wires a Server. Store and Scanner are required.
type Options struct {
	Store   store.ReportStore
	Scanner Scanner
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Ready backs /readyz; nil always reports ready.
	Ready func(ctx context.Context) error

	// DefaultRegions scopes scans whose request names no regions.
	DefaultRegions []string
}

type Server struct {
	r              *chi.Mux
	store          store.ReportStore
	differ         *diff.Differ
	scanner        Scanner
	metrics        *metrics.Metrics
	logger         *slog.Logger
	ready          func(ctx context.Context) error
	defaultRegions []string
}

func NewServer(opts Options) *Server {
	s := &Server{
		r:              chi.NewRouter(),
		store:          opts.Store,
		differ:         diff.NewDiffer(opts.Store),
		scanner:        opts.Scanner,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		ready:          opts.Ready,
		defaultRegions: opts.DefaultRegions,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(s.requestLogger)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	s.r.Get("/readyz", s.getReady)
	if s.metrics != nil {
		s.r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.r.Route("/api/v1", func(r chi.Router) {
		// Reports
		r.Get("/accounts/{account}/reports/latest", s.getLatestReport)
		r.Get("/accounts/{account}/reports", s.listReports)
		r.Get("/reports/{id}", s.getReport)
		r.Get("/accounts/{account}/diff", s.getDiff)

		// Scans
		r.Post("/accounts/{account}/scans", s.postScan)
		r.Get("/scans/{id}", s.getScan)

		r.Get("/rules", s.getRules)
	})
}

func (s *Server) Handler() http.Handler { return s.r }
