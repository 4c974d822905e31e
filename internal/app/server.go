package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"integration-hub/internal/handlers"
	"integration-hub/internal/server"
)

// RunServer starts the HTTP server with all handlers configured
func (app *App) RunServer() (*server.Server, http.Handler) {
	h := handlers.New(
		app.Orchestrator,
		app.Engine,
		app.Store,
		app.Registry,
		app.Logger,
	)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.RequireTenant, app.Guard)

	srv := server.New(router, app.Config.Port)

	return srv, router
}
