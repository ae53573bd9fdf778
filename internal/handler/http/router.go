package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront-checkout/pkg/health"
	"github.com/utafrali/storefront-checkout/pkg/middleware"
)

const serviceName = "storefront-checkout"

// RouterConfig carries the HTTP concerns that come from configuration.
type RouterConfig struct {
	CORSOrigins []string
	Environment string
	Tokens      middleware.TokenValidator
}

// NewRouter creates a chi router with all checkout flow routes registered.
func NewRouter(
	flows FlowService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(middleware.StorefrontCORSConfig(cfg.CORSOrigins, cfg.Environment)))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	flowHandler := NewFlowHandler(flows, logger)

	r.Route("/api/v1/checkout/flows", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Tokens))
		r.Use(middleware.RequestLogger(logger))

		flowHandler.Routes(r)
	})

	return r
}
