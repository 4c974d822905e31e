// Package oauth owns the integration lifecycle: initiating authorization
// flows, handling provider callbacks, refreshing credentials and
// disconnecting. All credential material crosses this package only as
// ciphertext; plaintext tokens live on the stack for the duration of one
// provider call.
package oauth

import (
	"context"
	"strings"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/common/utils"
	"integration-hub/internal/crypto"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauthstate"
	"integration-hub/internal/providers"
)

// CallbackResult is what a completed authorization flow reports back.
type CallbackResult struct {
	IntegrationID string `json:"integration_id"`
	AccountName   string `json:"account_name"`
	IsActive      bool   `json:"is_active"`
}

// Orchestrator drives the integration state machine.
type Orchestrator struct {
	store    integrations.Store
	registry *providers.Registry
	cipher   *crypto.TokenCipher
	issuer   *oauthstate.Issuer
	logger   logging.Logger
	retryCfg utils.RetryConfig
	nowFunc  func() time.Time
}

func NewOrchestrator(
	store integrations.Store,
	registry *providers.Registry,
	cipher *crypto.TokenCipher,
	issuer *oauthstate.Issuer,
	logger logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		registry: registry,
		cipher:   cipher,
		issuer:   issuer,
		logger:   logger,
		retryCfg: utils.DefaultRetryConfig(),
		nowFunc:  time.Now,
	}
}

// InitiateOAuth issues a state token, persists the pending flow on the
// tenant's integration record and returns the provider authorization URL.
// Repeating the call for the same (tenant, provider) pair overwrites the
// previous pending state instead of creating a second record.
func (o *Orchestrator) InitiateOAuth(ctx context.Context, tenantID string, provider providers.Provider) (string, error) {
	if tenantID == "" {
		return "", errors.ValidationError("tenant id is required")
	}

	adapter, err := o.registry.Get(provider)
	if err != nil {
		return "", err
	}

	state, err := o.issuer.Issue(tenantID, provider.String())
	if err != nil {
		return "", err
	}

	authURL, err := adapter.BuildAuthURL(state)
	if err != nil {
		return "", err
	}

	now := o.nowFunc()
	integration, err := o.store.GetByTenantAndProvider(ctx, tenantID, provider.String())
	if err != nil {
		if !errors.IsType(err, errors.ErrTypeNotFound) {
			return "", err
		}
		integration = &integrations.Integration{
			TenantID: tenantID,
			Provider: provider,
		}
	}

	integration.SyncStatus = integrations.StatusPendingAuth
	integration.PendingState = &integrations.PendingState{
		Token:     state,
		ExpiresAt: now.Add(oauthstate.TTL),
	}
	integration.StatusChangedAt = now

	if err := o.store.Upsert(ctx, integration); err != nil {
		return "", err
	}

	o.logger.Info("oauth flow initiated",
		logging.Field{Key: "tenant_id", Value: tenantID},
		logging.Field{Key: "provider", Value: provider.String()},
		logging.Field{Key: "integration_id", Value: integration.ID},
	)
	return authURL, nil
}

// HandleCallback completes an authorization flow. State validation runs
// before any network call; a failed validation or a provider-reported error
// leaves stored credentials untouched and clears the pending flow.
func (o *Orchestrator) HandleCallback(ctx context.Context, provider providers.Provider, code, state, providerErr, providerErrDesc string) (*CallbackResult, error) {
	if _, err := o.registry.Get(provider); err != nil {
		return nil, err
	}

	claims, err := o.issuer.Decode(state)
	if err != nil {
		o.logSecurityFailure("callback with unverifiable state", provider, "", err)
		return nil, err
	}
	if claims.Provider != provider.String() {
		o.logSecurityFailure("callback state bound to different provider", provider, claims.TenantID, nil)
		return nil, errors.InvalidStateError()
	}

	integration, err := o.store.GetByTenantAndProvider(ctx, claims.TenantID, provider.String())
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return nil, errors.InvalidStateError()
		}
		return nil, err
	}
	if integration.PendingState == nil {
		o.logSecurityFailure("callback without pending flow", provider, claims.TenantID, nil)
		return nil, errors.InvalidStateError()
	}
	if integration.PendingState.Expired(o.nowFunc()) {
		o.logSecurityFailure("callback after pending flow expired", provider, claims.TenantID, nil)
		o.abortPendingFlow(ctx, integration, "")
		return nil, errors.ExpiredStateError()
	}

	if _, err := o.issuer.Validate(state, integration.PendingState.Token); err != nil {
		o.logSecurityFailure("callback state rejected", provider, claims.TenantID, err)
		o.abortPendingFlow(ctx, integration, "")
		return nil, err
	}

	// The provider aborted the flow (user denied, misconfiguration). No code
	// exchange may be attempted; propagate the provider's message.
	if providerErr != "" {
		msg := providerErr
		if providerErrDesc != "" {
			msg = providerErr + ": " + providerErrDesc
		}
		o.abortPendingFlow(ctx, integration, "provider error: "+msg)
		return nil, errors.TokenExchangeError("provider reported error: "+msg, nil, false)
	}
	if code == "" {
		o.abortPendingFlow(ctx, integration, "callback missing authorization code")
		return nil, errors.ValidationError("authorization code is required")
	}

	adapter, err := o.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	tokens, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		o.abortPendingFlow(ctx, integration, "code exchange failed: "+err.Error())
		return nil, err
	}

	accessCipher, err := o.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		o.abortPendingFlow(ctx, integration, "credential encryption failed")
		return nil, err
	}
	refreshCipher, err := o.cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		o.abortPendingFlow(ctx, integration, "credential encryption failed")
		return nil, err
	}

	// Account identity is best-effort: a profile hiccup must not void a
	// successful exchange.
	account := &providers.AccountInfo{AccountID: "unknown", AccountName: "Unknown Account"}
	if info, err := adapter.FetchAccountInfo(ctx, tokens.AccessToken); err == nil {
		account = info
	} else {
		o.logger.Warn("account info lookup failed, using placeholder",
			logging.Err(err),
			logging.Field{Key: "provider", Value: provider.String()},
			logging.Field{Key: "integration_id", Value: integration.ID},
		)
	}

	now := o.nowFunc()
	integration.AccessTokenCipher = accessCipher
	integration.RefreshTokenCipher = refreshCipher
	integration.TokenExpiresAt = tokens.ExpiresAt(now)
	integration.AccountID = account.AccountID
	integration.AccountName = account.AccountName
	integration.Scopes = scopesFromResult(tokens, integration.Scopes)
	integration.IsActive = true
	integration.SyncStatus = integrations.StatusIdle
	integration.LastError = ""
	integration.PendingState = nil
	integration.StatusChangedAt = now

	if err := o.store.Update(ctx, integration); err != nil {
		return nil, err
	}

	o.logger.Info("oauth flow completed",
		logging.Field{Key: "tenant_id", Value: integration.TenantID},
		logging.Field{Key: "provider", Value: provider.String()},
		logging.Field{Key: "integration_id", Value: integration.ID},
		logging.Field{Key: "account_id", Value: account.AccountID},
	)
	return &CallbackResult{
		IntegrationID: integration.ID,
		AccountName:   integration.AccountName,
		IsActive:      true,
	}, nil
}

// RefreshTokens refreshes the integration's credentials. A terminal
// rejection of the refresh token deactivates the integration and surfaces
// RefreshTokenInvalid; the ciphers stay in place for the audit trail.
func (o *Orchestrator) RefreshTokens(ctx context.Context, tenantID, integrationID string) error {
	integration, err := o.getAuthorized(ctx, tenantID, integrationID)
	if err != nil {
		return err
	}

	if !integration.HasRefreshToken() {
		return errors.NoRefreshTokenError()
	}

	adapter, err := o.registry.Get(integration.Provider)
	if err != nil {
		return err
	}

	refreshToken, err := o.cipher.Decrypt(integration.RefreshTokenCipher)
	if err != nil {
		return err
	}

	// Transport and 5xx failures are retried with backoff; a definitive
	// rejection of the refresh token comes back immediately.
	var tokens *providers.TokenResult
	err = utils.RetryWithBackoff(ctx, o.retryCfg, func() error {
		var refreshErr error
		tokens, refreshErr = adapter.RefreshToken(ctx, refreshToken)
		return refreshErr
	})
	if err != nil {
		if errors.IsType(err, errors.ErrTypeRefreshTokenInvalid) {
			return o.markReauthRequired(ctx, integration, err)
		}
		return err
	}

	accessCipher, err := o.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return err
	}

	now := o.nowFunc()
	integration.AccessTokenCipher = accessCipher
	if tokens.RefreshToken != "" {
		refreshCipher, err := o.cipher.Encrypt(tokens.RefreshToken)
		if err != nil {
			return err
		}
		integration.RefreshTokenCipher = refreshCipher
	}
	integration.TokenExpiresAt = tokens.ExpiresAt(now)
	integration.LastError = ""

	if err := o.store.Update(ctx, integration); err != nil {
		return err
	}

	o.logger.Info("tokens refreshed",
		logging.Field{Key: "integration_id", Value: integration.ID},
		logging.Field{Key: "provider", Value: integration.Provider.String()},
	)
	return nil
}

// Disconnect revokes the token best-effort, clears all credential material
// and returns the record to the disconnected state.
func (o *Orchestrator) Disconnect(ctx context.Context, tenantID, integrationID string) error {
	integration, err := o.getAuthorized(ctx, tenantID, integrationID)
	if err != nil {
		return err
	}

	if integration.AccessTokenCipher != "" {
		if adapter, err := o.registry.Get(integration.Provider); err == nil {
			if accessToken, err := o.cipher.Decrypt(integration.AccessTokenCipher); err == nil {
				if err := adapter.RevokeToken(ctx, accessToken); err != nil {
					o.logger.Warn("token revocation failed, disconnecting anyway",
						logging.Err(err),
						logging.Field{Key: "integration_id", Value: integration.ID},
					)
				}
			}
		}
	}

	integration.ClearCredentials()
	integration.IsActive = false
	integration.SyncStatus = integrations.StatusIdle
	integration.LastError = ""
	integration.PendingState = nil
	integration.StatusChangedAt = o.nowFunc()

	if err := o.store.Update(ctx, integration); err != nil {
		return err
	}

	o.logger.Info("integration disconnected",
		logging.Field{Key: "integration_id", Value: integration.ID},
		logging.Field{Key: "provider", Value: integration.Provider.String()},
	)
	return nil
}

// getAuthorized loads by id and enforces tenant ownership. Foreign tenants
// see NotFound, never a hint that the id exists.
func (o *Orchestrator) getAuthorized(ctx context.Context, tenantID, integrationID string) (*integrations.Integration, error) {
	integration, err := o.store.GetByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if integration.TenantID != tenantID {
		return nil, errors.NotFoundError("integration not found")
	}
	return integration, nil
}

// markReauthRequired records a terminal refresh rejection: the integration
// deactivates but keeps its ciphers.
func (o *Orchestrator) markReauthRequired(ctx context.Context, integration *integrations.Integration, cause error) error {
	integration.IsActive = false
	integration.SyncStatus = integrations.StatusPendingAuth
	integration.PendingState = nil
	integration.LastError = "refresh token rejected, re-authentication required"
	integration.StatusChangedAt = o.nowFunc()

	if err := o.store.Update(ctx, integration); err != nil {
		return err
	}

	o.logger.Warn("integration requires re-authentication",
		logging.SecurityEvent("reauth_required"),
		logging.Field{Key: "integration_id", Value: integration.ID},
		logging.Field{Key: "provider", Value: integration.Provider.String()},
	)
	return cause
}

// abortPendingFlow clears the pending state after a failed callback. The
// record keeps whatever credentials it held before the flow started. The
// update is best-effort: the caller's error is the one that matters.
func (o *Orchestrator) abortPendingFlow(ctx context.Context, integration *integrations.Integration, reason string) {
	integration.PendingState = nil
	if reason != "" {
		integration.SyncStatus = integrations.StatusError
		integration.LastError = reason
	} else {
		integration.SyncStatus = integrations.StatusIdle
		integration.LastError = ""
	}
	integration.StatusChangedAt = o.nowFunc()

	if err := o.store.Update(ctx, integration); err != nil {
		o.logger.Error("failed to clear pending flow", err,
			logging.Field{Key: "integration_id", Value: integration.ID},
		)
	}
}

func (o *Orchestrator) logSecurityFailure(msg string, provider providers.Provider, tenantID string, err error) {
	fields := []logging.Field{
		logging.SecurityEvent("state_validation_failed"),
		{Key: "provider", Value: provider.String()},
	}
	if tenantID != "" {
		fields = append(fields, logging.Field{Key: "tenant_id", Value: tenantID})
	}
	if err != nil {
		fields = append(fields, logging.Err(err))
	}
	o.logger.Warn(msg, fields...)
}

// scopesFromResult prefers the scopes the provider actually granted over the
// ones requested.
func scopesFromResult(tokens *providers.TokenResult, requested []string) []string {
	if tokens.Scope == "" {
		return requested
	}
	return strings.FieldsFunc(tokens.Scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
