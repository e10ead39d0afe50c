package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Dhoini/checkout-service/internal/config"
	"github.com/Dhoini/checkout-service/internal/identity/identitytest"
	"github.com/Dhoini/checkout-service/internal/stripe/stripetest"
	"github.com/Dhoini/checkout-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.SiteURL = "https://site.example"
	cfg.Database.DSN = MemoryDSN
	cfg.Stripe.APIKey = "sk_test_123"
	cfg.Stripe.WebhookSecret = "whsec_123"
	cfg.Identity.URL = "https://project.supabase.example"
	cfg.Plans = []config.Plan{{Name: "Growth", PriceIDMonthly: "price_growth_monthly"}}
	return cfg
}

func newMemoryApp(t *testing.T) (*App, *identitytest.FakeClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	idp := identitytest.NewFakeClient()
	a, err := New(context.Background(), memoryConfig(), Clients{
		Stripe:   stripetest.NewFakeClient(),
		Identity: idp,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a, idp
}

func get(a *App, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func TestNewWiresInMemoryApplication(t *testing.T) {
	a, _ := newMemoryApp(t)

	w := get(a, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Empty(t, a.Checks)

	w = get(a, "/api/v1/plans", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "price_growth_monthly")

	w = get(a, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "checkout_http_request_duration_seconds"))
}

func TestValidatorFollowsJWTSecret(t *testing.T) {
	a, idp := newMemoryApp(t)
	token := idp.AddUser("user-1", "ada@example.com", "pw")

	// Без секрета токен проверяется через identity API
	w := get(a, "/api/v1/auth/session", token)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cfg := memoryConfig()
	cfg.Auth.JWTSecret = "local-secret"
	b, err := New(context.Background(), cfg, Clients{Stripe: stripetest.NewFakeClient(), Identity: idp}, logger.Nop())
	require.NoError(t, err)
	defer b.Close()

	w = get(b, "/api/v1/auth/session", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGRPCServerUsesAppChecks(t *testing.T) {
	a, _ := newMemoryApp(t)
	srv := a.GRPCServer()
	require.NotNil(t, srv)
	defer srv.Stop()
	assert.NotNil(t, srv.GRPC())
}
