package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-hub/internal/app"
	"integration-hub/internal/auth"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/crypto"
	"integration-hub/internal/guard"
	"integration-hub/internal/handlers"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauth"
	"integration-hub/internal/oauthstate"
	"integration-hub/internal/providers"
	"integration-hub/internal/syncer"
)

type testEnv struct {
	router    *mux.Router
	store     *integrations.MemoryStore
	cipher    *crypto.TokenCipher
	auth      *auth.Auth
	pullCalls int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{}

	// Fake provider speaking the token, profile and revoke endpoints.
	providerMux := http.NewServeMux()
	providerMux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "access-" + r.PostForm.Get("code"),
				"refresh_token": "refresh-" + r.PostForm.Get("code"),
				"expires_in":    3600,
			})
		case "refresh_token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "rotated-access",
				"expires_in":   3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	providerMux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sub": "acct-7", "name": "Ads Account"})
	})
	providerMux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	providerServer := httptest.NewServer(providerMux)
	t.Cleanup(providerServer.Close)

	store := integrations.NewMemoryStore()
	registry := providers.NewRegistry(map[providers.Provider]providers.Config{
		providers.GoogleAds: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "https://app.example.com/oauth/callback/google_ads",
			Scopes:       []string{"ads.read"},
			AuthURL:      providerServer.URL + "/auth",
			TokenURL:     providerServer.URL + "/token",
			ProfileURL:   providerServer.URL + "/profile",
			RevokeURL:    providerServer.URL + "/revoke",
		},
	})

	cipher, err := crypto.NewTokenCipher(strings.Repeat("k", 32))
	require.NoError(t, err)
	issuer, err := oauthstate.NewIssuer("state-signing-secret")
	require.NoError(t, err)

	logger := logging.NewDefaultLogger()
	orchestrator := oauth.NewOrchestrator(store, registry, cipher, issuer, logger)

	puller := syncer.PullerFunc(func(ctx context.Context, integration *integrations.Integration, accessToken string) error {
		atomic.AddInt64(&env.pullCalls, 1)
		return nil
	})
	engine := syncer.NewEngine(store, orchestrator, cipher, puller, logger)

	authSvc := auth.New(strings.Repeat("j", 32))
	g := guard.New(guard.NewMemoryStore(), guard.DefaultRules(), logger)

	h := handlers.New(orchestrator, engine, store, registry, logger)
	router := mux.NewRouter()
	app.SetupRoutes(router, h, authSvc.RequireTenant, g)

	env.router = router
	env.store = store
	env.cipher = cipher
	env.auth = authSvc
	return env
}

func (env *testEnv) do(t *testing.T, method, target, tenantID string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if tenantID != "" {
		token, err := env.auth.IssueToken(tenantID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seedActive(t *testing.T, tenantID string) *integrations.Integration {
	t.Helper()

	accessCipher, err := env.cipher.Encrypt("live-access-token")
	require.NoError(t, err)
	refreshCipher, err := env.cipher.Encrypt("live-refresh-token")
	require.NoError(t, err)

	expiry := time.Now().Add(2 * time.Hour)
	integration := &integrations.Integration{
		TenantID:           tenantID,
		Provider:           providers.GoogleAds,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     &expiry,
		AccountID:          "acct-7",
		AccountName:        "Ads Account",
		IsActive:           true,
		SyncStatus:         integrations.StatusIdle,
		StatusChangedAt:    time.Now(),
	}
	require.NoError(t, env.store.Upsert(context.Background(), integration))
	return integration
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestConnectThenCallbackActivates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/integrations/google_ads/connect", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	authURL, _ := decodeBody(t, rec)["auth_url"].(string)
	require.NotEmpty(t, authURL)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	rec = env.do(t, "GET", "/oauth/callback/google_ads?code=xyz&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/api/integrations", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := decodeBody(t, rec)["integrations"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "active", item["state"])
	assert.Equal(t, "acct-7", item["account_id"])
}

func TestConnectRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/integrations/google_ads/connect", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConnectUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/integrations/tiktok_ads/connect", "tenant-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_provider", decodeBody(t, rec)["type"])
}

func TestConnectUnconfiguredProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/integrations/meta_ads/connect", "tenant-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "provider_not_configured", decodeBody(t, rec)["type"])
}

func TestCallbackForgedStateHidesDetail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/oauth/callback/google_ads?code=xyz&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "state validation failed", decodeBody(t, rec)["error"])
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t)
	integration := env.seedActive(t, "tenant-1")

	rec := env.do(t, "POST", "/api/integrations/"+integration.ID+"/sync", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&env.pullCalls))
}

func TestSyncUnknownIntegration(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/integrations/no-such-id/sync", "tenant-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncForeignTenantLooksLikeNotFound(t *testing.T) {
	env := newTestEnv(t)
	integration := env.seedActive(t, "tenant-1")

	rec := env.do(t, "POST", "/api/integrations/"+integration.ID+"/sync", "tenant-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	integration := env.seedActive(t, "tenant-1")

	rec := env.do(t, "POST", "/api/integrations/"+integration.ID+"/refresh", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	access, err := env.cipher.Decrypt(got.AccessTokenCipher)
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", access)
}

func TestDisconnectEndpoint(t *testing.T) {
	env := newTestEnv(t)
	integration := env.seedActive(t, "tenant-1")

	rec := env.do(t, "DELETE", "/api/integrations/"+integration.ID, "tenant-1")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "GET", "/api/integrations", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := decodeBody(t, rec)["integrations"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "disconnected", items[0].(map[string]interface{})["state"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	integration := env.seedActive(t, "tenant-1")

	rec := env.do(t, "GET", "/api/integrations/"+integration.ID+"/health", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HEALTHY", decodeBody(t, rec)["status"])

	rec = env.do(t, "GET", "/api/integrations/health", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	reports, _ := decodeBody(t, rec)["reports"].([]interface{})
	assert.Len(t, reports, 1)
}

func TestProvidersEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/providers", "tenant-1")
	require.Equal(t, http.StatusOK, rec.Code)
	names, _ := decodeBody(t, rec)["providers"].([]interface{})
	require.Len(t, names, 1)
	assert.Equal(t, "google_ads", names[0])
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectGuardThrottles(t *testing.T) {
	env := newTestEnv(t)

	// The connect class allows 3 requests per window for one source IP.
	for i := 0; i < 3; i++ {
		rec := env.do(t, "POST", "/api/integrations/google_ads/connect", "tenant-1")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, "POST", "/api/integrations/google_ads/connect", "tenant-1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
