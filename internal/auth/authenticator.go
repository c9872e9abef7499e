package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/psychohelp/psychohelp/internal/shared"
)

// Authenticator verifies request credentials: codec checks plus the optional
// revocation denylist.
type Authenticator struct {
	codec      *Codec
	denylist   *Denylist
	cookieName string
}

// NewAuthenticator wires a codec with an optional denylist. A nil denylist
// keeps verification purely stateless.
func NewAuthenticator(codec *Codec, denylist *Denylist, cookieName string) *Authenticator {
	return &Authenticator{codec: codec, denylist: denylist, cookieName: cookieName}
}

// Codec exposes the underlying token codec.
func (a *Authenticator) Codec() *Codec { return a.codec }

// Credential extracts the raw token: the Authorization bearer header wins over
// the access cookie.
func (a *Authenticator) Credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if a.cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate verifies raw and returns the principal. Credential failures
// wrap shared.ErrUnauthenticated; other errors are infrastructure failures.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (shared.Principal, error) {
	if raw == "" {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	claims, err := a.codec.Verify(raw)
	if err != nil {
		return shared.Principal{}, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, err)
	}
	revoked, err := a.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return shared.Principal{}, err
	}
	if revoked {
		return shared.Principal{}, fmt.Errorf("%w: %w", shared.ErrUnauthenticated, ErrRevoked)
	}
	userID, _ := claims.UserID()
	return shared.Principal{
		UserID:    userID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh credential: the presented one is consumed and a
// new pair is issued. Reuse of a consumed credential fails with ErrInvalid.
func (a *Authenticator) Refresh(ctx context.Context, raw string) (Pair, error) {
	claims, err := a.codec.VerifyRefresh(raw)
	if err != nil {
		return Pair{}, err
	}
	fresh, err := a.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return Pair{}, err
	}
	if !fresh {
		return Pair{}, fmt.Errorf("%w: already used", ErrInvalid)
	}
	userID, _ := claims.UserID()
	return a.codec.IssuePair(userID)
}

// RevokePrincipal revokes the access token bound to p.
func (a *Authenticator) RevokePrincipal(ctx context.Context, p shared.Principal) error {
	if p.TokenID == "" {
		return nil
	}
	_, err := a.denylist.Revoke(ctx, p.TokenID, p.ExpiresAt)
	return err
}

// RevokeRefresh revokes a refresh credential if it is still valid.
func (a *Authenticator) RevokeRefresh(ctx context.Context, raw string) error {
	claims, err := a.codec.VerifyRefresh(raw)
	if err != nil {
		return nil
	}
	_, err = a.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	return err
}
