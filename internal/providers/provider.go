// Package providers contains the advertising-platform OAuth adapters.
//
// Each supported platform implements the Adapter interface; provider
// selection happens once at registry construction, never per call site.
// Endpoint URLs and extra authorization parameters are configuration on the
// adapter, not logic: all adapters speak the same form-encoded token
// protocol through one shared client.
package providers

import (
	"context"
	"time"

	"integration-hub/internal/common/errors"
)

// Provider identifies a supported advertising/analytics platform.
type Provider string

const (
	GoogleAds       Provider = "google_ads"
	MetaAds         Provider = "meta_ads"
	LinkedInAds     Provider = "linkedin_ads"
	GoogleAnalytics Provider = "google_analytics"
)

// All lists every supported provider.
func All() []Provider {
	return []Provider{GoogleAds, MetaAds, LinkedInAds, GoogleAnalytics}
}

// Parse converts a string to a Provider, rejecting unknown names.
func Parse(s string) (Provider, error) {
	switch Provider(s) {
	case GoogleAds, MetaAds, LinkedInAds, GoogleAnalytics:
		return Provider(s), nil
	default:
		return "", errors.UnsupportedProviderError(s)
	}
}

// String returns the wire name of the provider.
func (p Provider) String() string {
	return string(p)
}

// TokenResult is the outcome of a code exchange or token refresh.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds; 0 means the provider did not declare expiry
	Scope        string
}

// ExpiresAt converts ExpiresIn to an absolute time, or nil when the
// provider did not declare an expiry.
func (r *TokenResult) ExpiresAt(now time.Time) *time.Time {
	if r.ExpiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(r.ExpiresIn) * time.Second)
	return &t
}

// AccountInfo is the provider-side identity behind a token.
type AccountInfo struct {
	AccountID   string
	AccountName string
}

// Adapter is the capability set every platform implements.
type Adapter interface {
	// Provider returns which platform this adapter speaks to.
	Provider() Provider

	// BuildAuthURL composes the platform's authorization URL carrying the
	// opaque state token.
	BuildAuthURL(state string) (string, error)

	// ExchangeCode performs the authorization-code grant. Transport failures
	// are retriable; a provider-rejected code is not (it can never be replayed).
	ExchangeCode(ctx context.Context, code string) (*TokenResult, error)

	// RefreshToken performs the refresh grant. A 400/401 response classifies
	// as RefreshTokenInvalid (terminal), anything else as a retriable failure.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error)

	// FetchAccountInfo resolves the account identity behind the token.
	// Best-effort: callers proceed with a placeholder when it fails.
	FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)

	// RevokeToken revokes the token at the platform. Best-effort on
	// disconnect; failures never block disconnection.
	RevokeToken(ctx context.Context, accessToken string) error
}

// Config holds one provider's OAuth client settings. Endpoint fields default
// per provider and exist mainly so tests can point adapters at a fake server.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL    string
	TokenURL   string
	ProfileURL string
	RevokeURL  string
}

// Configured reports whether the provider has usable client credentials.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Registry holds the adapters for every configured provider.
type Registry struct {
	adapters map[Provider]Adapter
}

// NewRegistry builds adapters for each configured provider. Providers
// without client credentials are skipped, not errors: Get reports them as
// ProviderNotConfigured when asked for.
func NewRegistry(configs map[Provider]Config) *Registry {
	adapters := make(map[Provider]Adapter, len(configs))

	for provider, cfg := range configs {
		if !cfg.Configured() {
			continue
		}
		switch provider {
		case GoogleAds, GoogleAnalytics:
			adapters[provider] = NewGoogleAdapter(provider, cfg)
		case MetaAds:
			adapters[provider] = NewMetaAdapter(cfg)
		case LinkedInAds:
			adapters[provider] = NewLinkedInAdapter(cfg)
		}
	}

	return &Registry{adapters: adapters}
}

// Get returns the adapter for a provider, or ProviderNotConfigured when the
// provider is known but carries no credentials.
func (r *Registry) Get(provider Provider) (Adapter, error) {
	if _, err := Parse(string(provider)); err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, errors.ProviderNotConfiguredError(string(provider))
	}

	return adapter, nil
}

// Configured lists the providers that have adapters.
func (r *Registry) Configured() []Provider {
	out := make([]Provider, 0, len(r.adapters))
	for _, p := range All() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
