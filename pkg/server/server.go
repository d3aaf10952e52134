// Package server exposes scoring and playbook operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/orbyte/pkg/config"
	"github.com/Tsahi-Elkayam/orbyte/pkg/models"
	"github.com/Tsahi-Elkayam/orbyte/pkg/playbook"
	"github.com/Tsahi-Elkayam/orbyte/pkg/providers"
)

// ComplianceService answers compliance questions from stored evidence
type ComplianceService interface {
	ComplianceScore(ctx context.Context, framework models.Framework, resourceID string) (float64, error)
	IdentifyGaps(ctx context.Context, framework models.Framework) ([]string, error)
}

// SustainabilityService answers emissions questions from stored metrics
type SustainabilityService interface {
	CalculateEmissions(ctx context.Context, start, end time.Time) (models.EmissionsTotals, error)
	IdentifySavingsOpportunities(ctx context.Context) ([]models.SavingsOpportunity, error)
	SustainabilityScore(ctx context.Context) (float64, error)
	RegionalEmissions(ctx context.Context) (map[string]float64, error)
}

// PlaybookBuilder builds playbooks from issues
type PlaybookBuilder interface {
	Build(ctx context.Context, req playbook.BuildRequest) (*models.Playbook, error)
}

// PlaybookExecutor runs playbooks
type PlaybookExecutor interface {
	Execute(ctx context.Context, pb *models.Playbook) models.ExecutionReport
}

// ProviderLister describes the registered cloud providers
type ProviderLister interface {
	GetProviderInfo() []providers.ProviderInfo
}

// Dependencies are the services behind the routes. Routes whose dependency is nil
// are not mounted.
type Dependencies struct {
	Compliance     ComplianceService
	Sustainability SustainabilityService
	Builder        PlaybookBuilder
	Executor       PlaybookExecutor
	Providers      ProviderLister
}

// Server is the HTTP API
type Server struct {
	router          *chi.Mux
	logger          *logrus.Logger
	server          *http.Server
	shutdownTimeout time.Duration
}

// New creates the server and mounts its routes
func New(cfg config.ServerConfig, deps Dependencies, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	h := &handler{deps: deps, logger: logger, now: time.Now}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", h.health)
	router.Route("/api/v1", func(r chi.Router) {
		if deps.Compliance != nil {
			r.Get("/compliance/{framework}/score", h.complianceScore)
			r.Get("/compliance/{framework}/gaps", h.complianceGaps)
		}
		if deps.Sustainability != nil {
			r.Get("/sustainability/emissions", h.emissions)
			r.Get("/sustainability/opportunities", h.opportunities)
			r.Get("/sustainability/score", h.sustainabilityScore)
			r.Get("/sustainability/regions", h.regions)
		}
		if deps.Builder != nil {
			r.Post("/playbooks", h.buildPlaybook)
		}
		if deps.Executor != nil {
			r.Post("/playbooks/execute", h.executePlaybook)
		}
		if deps.Providers != nil {
			r.Get("/providers", h.listProviders)
		}
	})

	return &Server{
		router: router,
		logger: logger,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.server.Addr).Info("Starting API server")
		serverErrors <- s.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutdown initiated")
	}

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Graceful shutdown failed")
		return s.server.Close()
	}
	return nil
}

func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote_ip":  r.RemoteAddr,
				"request_id": middleware.GetReqID(r.Context()),
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
			}).Debug("Request served")
		})
	}
}
