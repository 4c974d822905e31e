package providers

import (
	"context"
	"encoding/json"
	"net/url"

	"integration-hub/internal/common/errors"
)

// Google OAuth endpoints. One adapter serves both GoogleAds and
// GoogleAnalytics; they differ only in credentials and scopes.
const (
	googleAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL   = "https://oauth2.googleapis.com/token"
	googleProfileURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleRevokeURL  = "https://oauth2.googleapis.com/revoke"
)

// GoogleAdapter implements Adapter for Google's OAuth endpoints.
type GoogleAdapter struct {
	provider Provider
	client   *oauthClient
}

// NewGoogleAdapter creates an adapter for a Google-backed provider.
func NewGoogleAdapter(provider Provider, cfg Config) *GoogleAdapter {
	if cfg.AuthURL == "" {
		cfg.AuthURL = googleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleTokenURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = googleProfileURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = googleRevokeURL
	}

	return &GoogleAdapter{
		provider: provider,
		client:   newOAuthClient(provider, cfg),
	}
}

func (a *GoogleAdapter) Provider() Provider {
	return a.provider
}

// BuildAuthURL adds access_type=offline and prompt=consent so Google issues
// a refresh token on every authorization, not only the first.
func (a *GoogleAdapter) BuildAuthURL(state string) (string, error) {
	return a.client.buildAuthURL(state, map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	})
}

func (a *GoogleAdapter) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	return a.client.exchangeCode(ctx, code)
}

func (a *GoogleAdapter) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	return a.client.refreshToken(ctx, refreshToken)
}

func (a *GoogleAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	return a.client.fetchProfile(ctx, accessToken, func(body []byte) (*AccountInfo, error) {
		var profile struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return nil, errors.InternalError("failed to decode google profile", err)
		}
		if profile.Sub == "" {
			return nil, errors.InternalError("google profile carried no subject", nil)
		}

		name := profile.Email
		if name == "" {
			name = profile.Name
		}
		return &AccountInfo{AccountID: profile.Sub, AccountName: name}, nil
	})
}

func (a *GoogleAdapter) RevokeToken(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("token", accessToken)
	return a.client.revoke(ctx, data)
}

var _ Adapter = (*GoogleAdapter)(nil)
