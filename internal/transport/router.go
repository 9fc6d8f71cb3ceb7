package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sitehq/girder/internal/config"
	"github.com/sitehq/girder/internal/graph"
	"github.com/sitehq/girder/internal/observability"
	"github.com/sitehq/girder/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Executor     *workflow.Executor
	Graph        *graph.Service
	Authenticate func(http.Handler) http.Handler
	Readiness    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)

	// Public routes.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Metrics != nil && deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/workflows/{entityType}/{entityID}", func(r chi.Router) {
			r.Post("/", handleInstanceCreate(deps.Executor))
			r.Get("/", handleInstanceGet(deps.Executor))
			r.Post("/transitions", handleTransition(deps.Executor))
			r.Get("/audit", handleInstanceAudit(deps.Executor))
		})

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/tasks", handleTaskCreate(deps.Graph))
			r.Post("/dependencies", handleDependencyAdd(deps.Graph))
			r.Get("/dependencies", handleDependencyList(deps.Graph))
			r.Get("/critical-path", handleCriticalPath(deps.Graph))
		})

		r.Delete("/dependencies/{dependencyID}", handleDependencyRemove(deps.Graph))

		r.Route("/tasks/{taskID}", func(r chi.Router) {
			r.Get("/readiness", handleTaskReadiness(deps.Graph))
			r.Post("/start", handleTaskStart(deps.Graph))
			r.Post("/complete", handleTaskComplete(deps.Graph))
			r.Post("/overrides", handleOverrideGrant(deps.Graph))
			r.Get("/audit", handleTaskAudit(deps.Graph))
		})
	})

	return r
}
