package app

import (
	"fmt"

	"integration-hub/internal/auth"
	"integration-hub/internal/config"
	"integration-hub/internal/crypto"
	"integration-hub/internal/oauth"
	"integration-hub/internal/oauthstate"
	"integration-hub/internal/providers"
)

// initializeOAuth builds the credential cipher, the state issuer, the
// provider registry and the flow orchestrator.
func (app *App) initializeOAuth() error {
	cipher, err := crypto.NewTokenCipher(app.Config.CredentialEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	issuer, err := oauthstate.NewIssuer(app.Config.StateSecret())
	if err != nil {
		return fmt.Errorf("failed to initialize state issuer: %w", err)
	}

	app.Cipher = cipher
	app.Issuer = issuer
	app.Auth = auth.New(app.Config.JWTSecret)
	app.Registry = providers.NewRegistry(providerConfigs(app.Config))
	app.Orchestrator = oauth.NewOrchestrator(app.Store, app.Registry, cipher, issuer, app.Logger)

	return nil
}

// providerConfigs maps the environment credentials onto provider adapter
// configs. The redirect URL is derived from the public base URL so every
// provider console registers the same callback shape.
func providerConfigs(cfg *config.Config) map[providers.Provider]providers.Config {
	build := func(p providers.Provider, creds config.ProviderCredentials) providers.Config {
		return providers.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectBaseURL + "/oauth/callback/" + p.String(),
			Scopes:       creds.Scopes,
		}
	}

	return map[providers.Provider]providers.Config{
		providers.GoogleAds:       build(providers.GoogleAds, cfg.GoogleAds),
		providers.MetaAds:         build(providers.MetaAds, cfg.MetaAds),
		providers.LinkedInAds:     build(providers.LinkedInAds, cfg.LinkedInAds),
		providers.GoogleAnalytics: build(providers.GoogleAnalytics, cfg.GoogleAnalytics),
	}
}
