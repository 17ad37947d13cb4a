package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"forcecode/internal/health"
	"forcecode/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Deployer      Deployer
	Diagnostics   DiagnosticReader
	HealthChecker *health.Checker
	Metrics       *observability.Metrics
	Root          string
	APIKey        string
}

// NewRouter creates the daemon's router. Probes are open; deploy routes
// require the API key when one is configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Deployer, cfg.Diagnostics, cfg.HealthChecker, cfg.Root)

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())
	r.Use(ContentTypeMiddleware())

	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))
		r.Post("/deploys", handler.CreateDeploy)
		r.Get("/diagnostics", handler.GetDiagnostics)
	})

	return r
}
