// Package handlers exposes the integration hub's HTTP surface.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"integration-hub/internal/auth"
	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauth"
	"integration-hub/internal/providers"
	"integration-hub/internal/syncer"
)

type Handlers struct {
	orchestrator *oauth.Orchestrator
	engine       *syncer.Engine
	store        integrations.Store
	registry     *providers.Registry
	logger       logging.Logger
}

func New(
	orchestrator *oauth.Orchestrator,
	engine *syncer.Engine,
	store integrations.Store,
	registry *providers.Registry,
	logger logging.Logger,
) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		engine:       engine,
		store:        store,
		registry:     registry,
		logger:       logger,
	}
}

// Connect starts an OAuth flow for the authenticated tenant.
// POST /api/integrations/{provider}/connect
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	provider, err := providers.Parse(mux.Vars(r)["provider"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	authURL, err := h.orchestrator.InitiateOAuth(r.Context(), auth.TenantID(r.Context()), provider)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// Callback receives the provider redirect. It is unauthenticated: the tenant
// binding comes from the signed state token.
// GET /oauth/callback/{provider}
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := providers.Parse(mux.Vars(r)["provider"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	query := r.URL.Query()
	result, err := h.orchestrator.HandleCallback(
		r.Context(),
		provider,
		query.Get("code"),
		query.Get("state"),
		query.Get("error"),
		query.Get("error_description"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// List returns the tenant's integrations.
// GET /api/integrations
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListByTenant(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}

	type item struct {
		*integrations.Integration
		State integrations.State `json:"state"`
	}
	items := make([]item, 0, len(all))
	for _, integration := range all {
		items = append(items, item{integration, integration.State()})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"integrations": items})
}

// Refresh forces a token refresh.
// POST /api/integrations/{id}/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	err := h.orchestrator.RefreshTokens(r.Context(), auth.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// Sync triggers an on-demand sync.
// POST /api/integrations/{id}/sync
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	err := h.engine.Sync(r.Context(), auth.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// Health reports one integration's diagnostics.
// GET /api/integrations/{id}/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	report := h.engine.CheckHealth(r.Context(), auth.TenantID(r.Context()), mux.Vars(r)["id"])
	h.writeJSON(w, http.StatusOK, report)
}

// BulkHealth reports diagnostics for every integration of the tenant.
// GET /api/integrations/health
func (h *Handlers) BulkHealth(w http.ResponseWriter, r *http.Request) {
	reports, err := h.engine.CheckAllHealth(r.Context(), auth.TenantID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// Disconnect revokes and removes the connection's credentials.
// DELETE /api/integrations/{id}
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	err := h.orchestrator.Disconnect(r.Context(), auth.TenantID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Providers lists which providers carry credentials and can be connected.
// GET /api/providers
func (h *Handlers) Providers(w http.ResponseWriter, r *http.Request) {
	configured := h.registry.Configured()
	names := make([]string, 0, len(configured))
	for _, p := range configured {
		names = append(names, p.String())
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"providers": names})
}

// Status is the liveness endpoint.
// GET /health
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Security-relevant
// failures carry a generic message; everything else surfaces the error text.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	errType := errors.GetType(err)
	status := statusFor(errType)

	message := err.Error()
	switch errType {
	case errors.ErrTypeInvalidState, errors.ErrTypeExpiredState:
		message = "state validation failed"
	case errors.ErrTypeIPBlocked:
		message = "temporarily blocked"
	case errors.ErrTypeInternal:
		message = "internal error"
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": message,
		"type":  string(errType),
	})
}

func statusFor(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrTypeValidation, errors.ErrTypeUnsupportedProvider,
		errors.ErrTypeProviderNotConfigured, errors.ErrTypeInvalidState,
		errors.ErrTypeExpiredState, errors.ErrTypeNoRefreshToken:
		return http.StatusBadRequest
	case errors.ErrTypeAuth, errors.ErrTypeRefreshTokenInvalid:
		return http.StatusUnauthorized
	case errors.ErrTypeIPBlocked:
		return http.StatusForbidden
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeAlreadySyncing, errors.ErrTypeInactive:
		return http.StatusConflict
	case errors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrTypeTokenExchange, errors.ErrTypeTokenRefresh:
		return http.StatusBadGateway
	case errors.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
