package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/psychohelp/psychohelp/internal/auth"
	"github.com/psychohelp/psychohelp/internal/observability"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/rbac/rbactest"
	"github.com/psychohelp/psychohelp/internal/roles"
	"github.com/psychohelp/psychohelp/internal/users"
	"github.com/psychohelp/psychohelp/internal/users/userstest"
)

func newTestRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	codec, err := auth.NewCodec(cfg.TokenConfig())
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(codec, auth.NewDenylist(client), cfg.TokenCookieName)
	metrics := observability.NewMetrics()

	graph := rbactest.NewSeededStore()
	rbacSvc := rbac.NewService(graph, rbac.NewPermissionCache(client, cfg.PermissionCacheTTL), logger)
	usersSvc := users.NewService(userstest.NewRepository(graph), rbacSvc, logger)
	authSvc := auth.NewService(usersSvc, rbacSvc, authenticator, logger).WithBcryptCost(bcrypt.MinCost)
	mw := rbac.Middleware{Auth: authenticator, Perms: rbacSvc, Logger: logger, Metrics: metrics}

	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authSvc, mw, cfg.CookieConfig(), cfg.LoginLimitPerMin),
		UsersHandler:       users.NewHandler(logger, usersSvc, mw),
		RolesHandler:       roles.NewHandler(logger, roles.NewService(rbacSvc), mw),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacSvc, mw),
		Metrics:            metrics,
	})
}

func testConfig() *Config {
	return &Config{
		AppEnv:             "development",
		AppRequestTimeout:  5 * time.Second,
		LogLevel:           "info",
		TokenSecret:        testSecret,
		TokenAlgorithm:     "HS256",
		TokenIssuer:        "psychohelp",
		AccessTokenTTL:     30 * time.Minute,
		RefreshTokenTTL:    time.Hour,
		TokenCookieName:    "access_token",
		RefreshCookieName:  "refresh_token",
		PermissionCacheTTL: time.Minute,
		RateLimitPerMinute: 1000,
		LoginLimitPerMin:   100,
	}
}

func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterEndToEnd(t *testing.T) {
	h := newTestRouter(t, testConfig())

	rr := serve(h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = serve(h, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/users/me", "", "").Code)

	rr = serve(h, http.MethodPost, "/auth/register", "",
		`{"email":"ann@example.com","password":"correct-horse","first_name":"Ann","last_name":"Lee"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var body struct {
		Tokens auth.TokenResponse `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	token := body.Tokens.AccessToken
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/users/me", token, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/roles/", token, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/permissions/", token, "").Code)

	rr = serve(h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	metrics := rr.Body.String()
	assert.Contains(t, metrics, `psychohelp_authz_decisions_total{outcome="forbidden"} 2`)
	assert.Contains(t, metrics, `psychohelp_authz_decisions_total{outcome="unauthenticated"} 1`)
	assert.Contains(t, metrics, `psychohelp_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestRouterRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	h := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/healthz", "", "").Code)
	rr := serve(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
