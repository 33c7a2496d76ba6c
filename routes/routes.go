package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/graph-profile-gateway/app"
	"github.com/upb/graph-profile-gateway/handlers"
	appmiddleware "github.com/upb/graph-profile-gateway/middleware"
	"github.com/upb/graph-profile-gateway/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}
	r.Use(deps.Metrics.Middleware)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.AccessTokenHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	var cache handlers.CacheReporter
	if deps.Validator != nil {
		cache = deps.Validator
	}
	health := handlers.NewHealthHandler(deps.Config, cache, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	profile := handlers.NewProfileHandler(deps.ProfileService, deps.Metrics, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.ExtractAccessToken)

		r.Get("/getUserProfile", profile.GetUserProfile)
		r.Post("/getUserProfile", profile.GetUserProfile)

		r.Get("/headerTest", profile.HeaderTest)
		r.Post("/headerTest", profile.HeaderTest)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
