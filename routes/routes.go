package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/acquisitions-api/app"
	"github.com/upb/acquisitions-api/handlers"
	"github.com/upb/acquisitions-api/middleware"
	"github.com/upb/acquisitions-api/models"
	"github.com/upb/acquisitions-api/utils"
)

// SetupRoutes configures all application routes and middleware.
// Every /api route runs Throttle, then Gate, then role or ownership checks,
// then the handler.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	if deps.Config.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", middleware.HeaderRateLimitLimit, middleware.HeaderRateLimitRemaining, middleware.HeaderRateLimitReset, middleware.HeaderRetryAfter},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	onError := handlers.ErrorResponder(deps.Logger)
	throttled := middleware.NewPipeline(onError, deps.Logger,
		middleware.ThrottleStage(deps.Throttle, middleware.SessionSubjects(deps.Gate)))
	authenticated := throttled.With(deps.Gate.Authenticate())
	admin := authenticated.With(middleware.RequireRole(models.RoleAdmin))
	selfOrAdmin := authenticated.With(middleware.RequireSelfOrRole("id", models.RoleAdmin))

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/status", throttled.ThenFunc(deps.HealthHandler.HandleStatus))

		r.Route("/auth", func(r chi.Router) {
			r.Method(http.MethodPost, "/sign-up", throttled.With(deps.Gate.OptionalAuthenticate()).ThenFunc(deps.AuthHandler.HandleSignUp))
			r.Method(http.MethodPost, "/sign-in", throttled.ThenFunc(deps.AuthHandler.HandleSignIn))
			r.Method(http.MethodPost, "/sign-out", throttled.With(deps.Gate.OptionalAuthenticate()).ThenFunc(deps.AuthHandler.HandleSignOut))
		})

		r.Route("/users", func(r chi.Router) {
			r.Method(http.MethodGet, "/", admin.ThenFunc(deps.UserHandler.HandleList))
			r.Method(http.MethodGet, "/me", authenticated.ThenFunc(deps.UserHandler.HandleMe))
			r.Method(http.MethodGet, "/{id}", selfOrAdmin.ThenFunc(deps.UserHandler.HandleGet))
			r.Method(http.MethodPut, "/{id}", selfOrAdmin.ThenFunc(deps.UserHandler.HandleUpdate))
			r.Method(http.MethodDelete, "/{id}", admin.With(middleware.DenySelf("id")).ThenFunc(deps.UserHandler.HandleDelete))
		})

		r.Method(http.MethodGet, "/throttle/stats", admin.ThenFunc(deps.ThrottleHandler.HandleStats))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "not_found", "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	return r
}
