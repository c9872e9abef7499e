package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychohelp/psychohelp/internal/shared"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuthenticator(newTestCodec(t, nil), NewDenylist(client), "access_token"), mr
}

func TestCredentialExtraction(t *testing.T) {
	a, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", a.Credential(req))

	req.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", a.Credential(req))

	req.Header.Set("Authorization", "bearer from-header")
	assert.Equal(t, "from-header", a.Credential(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", a.Credential(req))
}

func TestAuthenticate(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()
	user := uuid.New()
	tok, err := a.Codec().Issue(user)
	require.NoError(t, err)

	p, err := a.Authenticate(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, user, p.UserID)
	assert.Equal(t, tok.ID, p.TokenID)

	_, err = a.Authenticate(ctx, "")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)

	_, err = a.Authenticate(ctx, "junk")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAuthenticateExpiredIsUnauthenticated(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, clock)
	a := NewAuthenticator(codec, nil, "")
	tok, err := codec.Issue(uuid.New())
	require.NoError(t, err)

	clock.t = tok.ExpiresAt
	_, err = a.Authenticate(context.Background(), tok.Value)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRevokedAccessToken(t *testing.T) {
	a, mr := newTestAuthenticator(t)
	ctx := context.Background()
	tok, err := a.Codec().Issue(uuid.New())
	require.NoError(t, err)
	p, err := a.Authenticate(ctx, tok.Value)
	require.NoError(t, err)

	require.NoError(t, a.RevokePrincipal(ctx, p))
	_, err = a.Authenticate(ctx, tok.Value)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
	assert.ErrorIs(t, err, ErrRevoked)

	ttl := mr.TTL(denylistPrefix + tok.ID)
	assert.Greater(t, ttl, 29*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	ctx := context.Background()
	user := uuid.New()
	pair, err := a.Codec().IssuePair(user)
	require.NoError(t, err)

	next, err := a.Refresh(ctx, pair.Refresh.Value)
	require.NoError(t, err)
	p, err := a.Authenticate(ctx, next.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, user, p.UserID)

	_, err = a.Refresh(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, a.RevokeRefresh(ctx, next.Refresh.Value))
	_, err = a.Refresh(ctx, next.Refresh.Value)
	assert.ErrorIs(t, err, ErrInvalid)

	assert.NoError(t, a.RevokeRefresh(ctx, "garbage"))
}

func TestDenylistDisabled(t *testing.T) {
	var d *Denylist
	ok, err := d.Revoke(context.Background(), "id", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
	revoked, err := d.IsRevoked(context.Background(), "id")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestDenylistUnavailable(t *testing.T) {
	a, mr := newTestAuthenticator(t)
	tok, err := a.Codec().Issue(uuid.New())
	require.NoError(t, err)
	mr.Close()

	_, err = a.Authenticate(context.Background(), tok.Value)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrUnauthenticated)
}
