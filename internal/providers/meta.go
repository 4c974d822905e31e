package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"integration-hub/internal/common/errors"
)

// Meta (Facebook) Graph API endpoints.
const (
	metaAuthURL    = "https://www.facebook.com/v19.0/dialog/oauth"
	metaTokenURL   = "https://graph.facebook.com/v19.0/oauth/access_token"
	metaProfileURL = "https://graph.facebook.com/v19.0/me?fields=id,name"
	metaRevokeURL  = "https://graph.facebook.com/v19.0/me/permissions"
)

// MetaAdapter implements Adapter for the Meta Graph API.
//
// Meta does not issue separate refresh tokens: the token endpoint's
// fb_exchange_token grant trades a valid access token for a long-lived one.
// The orchestrator stores the access token as its own refresh credential, so
// RefreshToken here receives the previous access token.
type MetaAdapter struct {
	client *oauthClient
}

// NewMetaAdapter creates an adapter for Meta Ads.
func NewMetaAdapter(cfg Config) *MetaAdapter {
	if cfg.AuthURL == "" {
		cfg.AuthURL = metaAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = metaTokenURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = metaProfileURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = metaRevokeURL
	}

	return &MetaAdapter{client: newOAuthClient(MetaAds, cfg)}
}

func (a *MetaAdapter) Provider() Provider {
	return MetaAds
}

func (a *MetaAdapter) BuildAuthURL(state string) (string, error) {
	return a.client.buildAuthURL(state, nil)
}

func (a *MetaAdapter) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	return a.client.exchangeCode(ctx, code)
}

// RefreshToken exchanges the stored token for a fresh long-lived token via
// the fb_exchange_token grant.
func (a *MetaAdapter) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	data := url.Values{}
	data.Set("grant_type", "fb_exchange_token")
	data.Set("fb_exchange_token", refreshToken)
	data.Set("client_id", a.client.cfg.ClientID)
	data.Set("client_secret", a.client.cfg.ClientSecret)

	status, body, err := a.client.postForm(ctx, a.client.cfg.TokenURL, data)
	if err != nil {
		return nil, errors.TokenRefreshError("meta_ads token endpoint unreachable", err)
	}

	switch {
	case status == http.StatusOK:
		result, err := parseTokenResponse(body)
		if err != nil {
			return nil, err
		}
		// The exchanged token is also the next refresh credential.
		if result.RefreshToken == "" {
			result.RefreshToken = result.AccessToken
		}
		return result, nil
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return nil, errors.RefreshTokenInvalidError(string(MetaAds))
	default:
		return nil, errors.TokenRefreshError("meta_ads token endpoint returned error", nil)
	}
}

func (a *MetaAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	return a.client.fetchProfile(ctx, accessToken, func(body []byte) (*AccountInfo, error) {
		var profile struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(body, &profile); err != nil {
			return nil, errors.InternalError("failed to decode meta profile", err)
		}
		if profile.ID == "" {
			return nil, errors.InternalError("meta profile carried no id", nil)
		}
		return &AccountInfo{AccountID: profile.ID, AccountName: profile.Name}, nil
	})
}

// RevokeToken deletes the app's permissions for the authorizing user.
func (a *MetaAdapter) RevokeToken(ctx context.Context, accessToken string) error {
	data := url.Values{}
	data.Set("access_token", accessToken)
	return a.client.revoke(ctx, data)
}

var _ Adapter = (*MetaAdapter)(nil)
