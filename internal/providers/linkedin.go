package providers

import (
	"context"
	"encoding/json"

	"integration-hub/internal/common/errors"
)

// LinkedIn OAuth endpoints.
const (
	linkedinAuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	linkedinProfileURL = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInAdapter implements Adapter for LinkedIn's OAuth endpoints.
type LinkedInAdapter struct {
	client *oauthClient
}

// NewLinkedInAdapter creates an adapter for LinkedIn Ads.
func NewLinkedInAdapter(cfg Config) *LinkedInAdapter {
	if cfg.AuthURL == "" {
		cfg.AuthURL = linkedinAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = linkedinTokenURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = linkedinProfileURL
	}

	return &LinkedInAdapter{client: newOAuthClient(LinkedInAds, cfg)}
}

func (a *LinkedInAdapter) Provider() Provider {
	return LinkedInAds
}

func (a *LinkedInAdapter) BuildAuthURL(state string) (string, error) {
	return a.client.buildAuthURL(state, nil)
}

func (a *LinkedInAdapter) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	return a.client.exchangeCode(ctx, code)
}

func (a *LinkedInAdapter) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	return a.client.refreshToken(ctx, refreshToken)
}

func (a *LinkedInAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	return a.client.fetchProfile(ctx, accessToken, func(body []byte) (*AccountInfo, error) {
		var profile struct {
			Sub   string `json:"sub"`
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return nil, errors.InternalError("failed to decode linkedin profile", err)
		}
		if profile.Sub == "" {
			return nil, errors.InternalError("linkedin profile carried no subject", nil)
		}

		name := profile.Name
		if name == "" {
			name = profile.Email
		}
		return &AccountInfo{AccountID: profile.Sub, AccountName: name}, nil
	})
}

// RevokeToken is a no-op: LinkedIn exposes no token revocation endpoint.
// Access is severed by the user removing the app from their LinkedIn
// settings, or by the token expiring. Disconnect proceeds regardless.
func (a *LinkedInAdapter) RevokeToken(ctx context.Context, accessToken string) error {
	return nil
}

var _ Adapter = (*LinkedInAdapter)(nil)
