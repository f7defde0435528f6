package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anvilops/flowline/internal/service"
)

// Server is the HTTP surface over the workflow service.
type Server struct {
	workflows *service.WorkflowService
	logger    *slog.Logger
	registry  *prometheus.Registry // nil disables /metrics
}

// NewServer creates a Server. registry may be nil to disable /metrics.
func NewServer(workflows *service.WorkflowService, logger *slog.Logger, registry *prometheus.Registry) *Server {
	return &Server{
		workflows: workflows,
		logger:    logger,
		registry:  registry,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.handleCreateWorkflow)
			r.Get("/", s.handleListWorkflows)
			r.Get("/{id}", s.handleGetWorkflow)
			r.Patch("/{id}", s.handleUpdateWorkflow)
			r.Delete("/{id}", s.handleDeleteWorkflow)
			r.Post("/{id}/execute", s.handleExecuteWorkflow)
			r.Get("/{id}/stats", s.handleExecutionStats)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.handleListExecutions)
			r.Get("/{id}", s.handleGetExecution)
			r.Get("/{id}/steps", s.handleListExecutionSteps)
			r.Post("/{id}/cancel", s.handleCancelExecution)
		})
		r.Route("/triggers", func(r chi.Router) {
			r.Post("/", s.handleCreateTrigger)
			r.Get("/", s.handleListTriggers)
			r.Patch("/{id}", s.handleUpdateTrigger)
			r.Delete("/{id}", s.handleDeleteTrigger)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
