package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"integration-hub/internal/common/errors"
	commonhttp "integration-hub/internal/common/http"
)

// requestTimeout bounds every outbound provider call.
const requestTimeout = 15 * time.Second

// tokenResponse maps the standard RFC 6749 token response fields.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenError maps the standard RFC 6749 error body.
type tokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e tokenError) message(fallback string) string {
	if e.Code == "" {
		return fallback
	}
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// oauthClient is the shared transport all adapters use for the token,
// profile and revocation endpoints. It wraps the common HTTP client with a
// circuit breaker and a per-provider request throttle.
type oauthClient struct {
	provider Provider
	cfg      Config
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	throttle *rate.Limiter
}

func newOAuthClient(provider Provider, cfg Config) *oauthClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("oauth-%s", provider),
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &oauthClient{
		provider: provider,
		cfg:      cfg,
		http:     commonhttp.NewHTTPClientWithTimeout(requestTimeout),
		breaker:  breaker,
		throttle: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// buildAuthURL composes the authorization endpoint URL with the client id,
// redirect URI, scopes, state and provider-specific extra parameters.
func (c *oauthClient) buildAuthURL(state string, extra map[string]string) (string, error) {
	u, err := url.Parse(c.cfg.AuthURL)
	if err != nil {
		return "", errors.ConfigError(fmt.Sprintf("invalid auth URL for %s", c.provider))
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("state", state)
	if len(c.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	for k, v := range extra {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// exchangeCode performs the authorization-code grant.
func (c *oauthClient) exchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("redirect_uri", c.cfg.RedirectURL)

	status, body, err := c.postForm(ctx, c.cfg.TokenURL, data)
	if err != nil {
		// Transport never reached a provider verdict; the code may still be live.
		return nil, errors.TokenExchangeError(
			fmt.Sprintf("%s token endpoint unreachable", c.provider), err, true)
	}

	if status != http.StatusOK {
		var errBody tokenError
		_ = json.Unmarshal(body, &errBody)
		// 5xx is the provider failing, not the code being rejected.
		if status >= http.StatusInternalServerError {
			return nil, errors.TokenExchangeError(
				fmt.Sprintf("%s token endpoint returned %d", c.provider, status), nil, true)
		}
		return nil, errors.TokenExchangeError(
			errBody.message(fmt.Sprintf("%s rejected the authorization code (status %d)", c.provider, status)),
			nil, false)
	}

	return parseTokenResponse(body)
}

// refreshToken performs the refresh grant. A 400/401 means the refresh token
// itself is no longer honored and re-authentication is required.
func (c *oauthClient) refreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)

	status, body, err := c.postForm(ctx, c.cfg.TokenURL, data)
	if err != nil {
		return nil, errors.TokenRefreshError(
			fmt.Sprintf("%s token endpoint unreachable", c.provider), err)
	}

	switch {
	case status == http.StatusOK:
		return parseTokenResponse(body)
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		var errBody tokenError
		_ = json.Unmarshal(body, &errBody)
		return nil, errors.RefreshTokenInvalidError(string(c.provider)).
			WithCode(errBody.Code)
	default:
		return nil, errors.TokenRefreshError(
			fmt.Sprintf("%s token endpoint returned %d", c.provider, status), nil)
	}
}

// fetchProfile performs a bearer-token GET against the profile endpoint and
// hands the body to the adapter-specific parser.
func (c *oauthClient) fetchProfile(ctx context.Context, accessToken string, parse func([]byte) (*AccountInfo, error)) (*AccountInfo, error) {
	if c.cfg.ProfileURL == "" {
		return nil, errors.ConfigError(fmt.Sprintf("no profile URL configured for %s", c.provider))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProfileURL, nil)
	if err != nil {
		return nil, errors.InternalError("failed to create profile request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	status, body, err := c.do(ctx, req)
	if err != nil {
		return nil, errors.InternalError(fmt.Sprintf("%s profile endpoint unreachable", c.provider), err)
	}
	if status != http.StatusOK {
		return nil, errors.InternalError(
			fmt.Sprintf("%s profile endpoint returned %d", c.provider, status), nil)
	}

	return parse(body)
}

// revoke posts the token to the revocation endpoint. An empty revoke URL
// means the provider has no revocation endpoint and the call succeeds as a
// no-op; real failures are returned for the caller to log, never to block on.
func (c *oauthClient) revoke(ctx context.Context, data url.Values) error {
	if c.cfg.RevokeURL == "" {
		return nil
	}

	status, _, err := c.postForm(ctx, c.cfg.RevokeURL, data)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("%s revocation endpoint unreachable", c.provider), err)
	}
	if status >= http.StatusBadRequest {
		return errors.InternalError(
			fmt.Sprintf("%s revocation endpoint returned %d", c.provider, status), nil)
	}

	return nil
}

// postForm sends an application/x-www-form-urlencoded POST.
func (c *oauthClient) postForm(ctx context.Context, endpoint string, data url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(ctx, req)
}

// do executes a request through the throttle and circuit breaker and drains
// the response body.
func (c *oauthClient) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return 0, nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		return &httpResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return 0, nil, err
	}

	r := result.(*httpResult)
	return r.status, r.body, nil
}

type httpResult struct {
	status int
	body   []byte
}

func parseTokenResponse(body []byte) (*TokenResult, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.InternalError("failed to decode token response", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.InternalError("token response carried no access token", nil)
	}

	return &TokenResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
		Scope:        resp.Scope,
	}, nil
}
