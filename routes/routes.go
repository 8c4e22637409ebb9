package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mbwilding/microkit/app"
	"github.com/mbwilding/microkit/handlers"
	"github.com/mbwilding/microkit/middleware"
	"github.com/mbwilding/microkit/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	var recorder middleware.RequestRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, recorder))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Link", middleware.RequestIDHeader, "WWW-Authenticate"},
		MaxAge:         300,
	}))

	r.Use(middleware.InjectAuthConfig(deps.Auth))

	// Health check endpoints
	live := handlers.HealthCheck(deps)
	ready := handlers.ReadinessCheck(deps)
	r.Get("/healthz", live)
	r.Get("/readyz", ready)
	r.Get("/status/live", live)
	r.Get("/status/ready", ready)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	if deps.Config.IsDevelopment() {
		r.Mount("/debug", chimw.Profiler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", handlers.StatusHandler(deps))

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", handlers.CurrentPrincipalHandler(deps))

			r.With(deps.AuthMiddleware.RequireRole(deps.Config.Auth.AdminGroup)).
				Post("/auth/jwks/refresh", handlers.RefreshKeysHandler(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Endpoint not found")
	})

	return r
}
