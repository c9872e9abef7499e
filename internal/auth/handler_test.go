package auth_test

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
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/psychohelp/psychohelp/internal/auth"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/rbac/rbactest"
	"github.com/psychohelp/psychohelp/internal/users"
	"github.com/psychohelp/psychohelp/internal/users/userstest"
)

type authFixture struct {
	router chi.Router
	clock  *time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Now()
	f := &authFixture{clock: &now}
	codec, err := auth.NewCodec(auth.TokenConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		Algorithm:  "HS256",
		Issuer:     "psychohelp",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}, auth.WithClock(func() time.Time { return *f.clock }))
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(codec, auth.NewDenylist(client), "access_token")

	graph := rbactest.NewSeededStore()
	rbacSvc := rbac.NewService(graph, rbac.NewPermissionCache(client, time.Minute), logger)
	accounts := users.NewService(userstest.NewRepository(graph), rbacSvc, logger)
	svc := auth.NewService(accounts, rbacSvc, authenticator, logger).WithBcryptCost(bcrypt.MinCost)
	mw := rbac.Middleware{Auth: authenticator, Perms: rbacSvc, Logger: logger}

	r := chi.NewRouter()
	r.Route("/auth", auth.NewHandler(logger, svc, mw, auth.CookieConfig{AccessName: "access_token", RefreshName: "refresh_token"}, 0).MountRoutes)
	r.With(mw.RequirePermission(rbac.PermAppointmentsCreateOwn)).Post("/appointments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	f.router = r
	return f
}

func (f *authFixture) do(method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

type tokensBody struct {
	Tokens auth.TokenResponse `json:"tokens"`
}

const registerBody = `{"email":"Ivan@Example.com","password":"correct-horse","first_name":"Ivan","last_name":"Petrov"}`

func TestRegisterLoginAndMe(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.do(http.MethodPost, "/auth/register", registerBody, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	}
	assert.NotContains(t, rr.Body.String(), "password")

	rr = f.do(http.MethodPost, "/auth/register", registerBody, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.do(http.MethodPost, "/auth/login", `{"email":"ivan@example.com","password":"wrong-horse"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	unknown := f.do(http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"wrong-horse"}`, nil)
	assert.Equal(t, rr.Body.String(), unknown.Body.String())

	rr = f.do(http.MethodPost, "/auth/login", `{"email":"IVAN@example.com","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body tokensBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Tokens.AccessToken)

	rr = f.do(http.MethodGet, "/auth/me", "", bearer(body.Tokens.AccessToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var session struct {
		User        users.User `json:"user"`
		Roles       []rbac.UserRole
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	assert.Equal(t, "ivan@example.com", session.User.Email)
	require.Len(t, session.Roles, 1)
	assert.Equal(t, rbac.RoleUser, session.Roles[0].Code)
	assert.Contains(t, session.Permissions, string(rbac.PermAppointmentsCreateOwn))

	rr = f.do(http.MethodPost, "/appointments", "", bearer(body.Tokens.AccessToken))
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestExpiredAndMissingCredentialsAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	rr := f.do(http.MethodPost, "/auth/register", registerBody, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var body tokensBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))

	*f.clock = body.Tokens.ExpiresAt
	expired := f.do(http.MethodPost, "/appointments", "", bearer(body.Tokens.AccessToken))
	missing := f.do(http.MethodPost, "/appointments", "", nil)
	malformed := f.do(http.MethodPost, "/appointments", "", bearer("abc.def.ghi"))

	for _, rr := range []*httptest.ResponseRecorder{expired, malformed} {
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, missing.Code, rr.Code)
		assert.Equal(t, missing.Body.String(), rr.Body.String())
	}
}

func TestRefreshAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	rr := f.do(http.MethodPost, "/auth/register", registerBody, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var body tokensBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	oldRefresh := body.Tokens.RefreshToken

	rr = f.do(http.MethodPost, "/auth/refresh", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: oldRefresh})
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rotated auth.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rotated))
	assert.NotEqual(t, oldRefresh, rotated.RefreshToken)

	rr = f.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"`+oldRefresh+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"`+rotated.AccessToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/auth/logout", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: rotated.RefreshToken})
	})
	require.Equal(t, http.StatusNoContent, rr.Code)
	for _, c := range rr.Result().Cookies() {
		assert.Empty(t, c.Value)
	}

	rr = f.do(http.MethodGet, "/auth/me", "", bearer(rotated.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = f.do(http.MethodPost, "/auth/refresh", `{"refresh_token":"`+rotated.RefreshToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	rr := f.do(http.MethodPost, "/auth/register", `{"email":"not-an-email","password":"short","first_name":"A","last_name":"B"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email")
	assert.Contains(t, rr.Body.String(), "Password")
}
