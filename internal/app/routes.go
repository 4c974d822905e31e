package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"integration-hub/internal/guard"
	"integration-hub/internal/handlers"
	"integration-hub/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, g *guard.Guard) {
	// Add logging middleware to all routes
	router.Use(middleware.LoggingMiddleware)

	// Health check (no auth required)
	router.HandleFunc("/health", h.Status).Methods("GET")

	// Provider callback. Unauthenticated by necessity: the browser arrives
	// here from the provider's consent screen. The signed state token does
	// the tenant binding, the guard throttles abuse per source IP.
	callback := router.NewRoute().Subrouter()
	callback.Use(g.HTTPMiddleware("auth", guard.IPBasedKey))
	callback.HandleFunc("/oauth/callback/{provider}", h.Callback).Methods("GET")

	// Protected routes - require authentication
	protected := router.NewRoute().Subrouter()
	protected.Use(authMiddleware)

	api := protected.PathPrefix("/api").Subrouter()

	// Connect flows get the strictest guard class
	connect := api.NewRoute().Subrouter()
	connect.Use(g.HTTPMiddleware("connect", guard.IPBasedKey))
	connect.HandleFunc("/integrations/{provider}/connect", h.Connect).Methods("POST")

	// General API endpoints
	general := api.NewRoute().Subrouter()
	general.Use(g.HTTPMiddleware("api", guard.IPBasedKey))
	general.HandleFunc("/providers", h.Providers).Methods("GET")
	general.HandleFunc("/integrations", h.List).Methods("GET")
	general.HandleFunc("/integrations/health", h.BulkHealth).Methods("GET")
	general.HandleFunc("/integrations/{id}", h.Disconnect).Methods("DELETE")
	general.HandleFunc("/integrations/{id}/refresh", h.Refresh).Methods("POST")
	general.HandleFunc("/integrations/{id}/sync", h.Sync).Methods("POST")
	general.HandleFunc("/integrations/{id}/health", h.Health).Methods("GET")
}
