package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Decision outcomes reported to the DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
	OutcomeError           = "error"
)

// TokenAuthenticator extracts and verifies the request credential.
type TokenAuthenticator interface {
	Credential(r *http.Request) string
	Authenticate(ctx context.Context, raw string) (shared.Principal, error)
}

// PermissionSource resolves effective permissions.
type PermissionSource interface {
	PermissionsOf(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
}

// DecisionRecorder counts gate outcomes.
type DecisionRecorder interface {
	ObserveAuthz(outcome string)
}

// Middleware is the authorization gate. Every denial happens before the
// wrapped handler runs.
type Middleware struct {
	Auth    TokenAuthenticator
	Perms   PermissionSource
	Logger  *slog.Logger
	Metrics DecisionRecorder
}

// CurrentPrincipal returns the principal bound by the gate.
func CurrentPrincipal(ctx context.Context) (shared.Principal, bool) {
	return shared.PrincipalFromContext(ctx)
}

// Authenticate binds the principal or responds 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuthenticate binds the principal when a valid credential is present
// and otherwise lets the request through anonymously.
func (m Middleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			if raw := m.Auth.Credential(r); raw != "" {
				if p, err := m.Auth.Authenticate(r.Context(), raw); err == nil {
					r = r.WithContext(shared.ContextWithPrincipal(r.Context(), p))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission allows the request only when the principal holds code.
func (m Middleware) RequirePermission(code PermissionCode) func(http.Handler) http.Handler {
	return m.require("rbac require permission", []PermissionCode{code}, PermissionSet.HasAll)
}

// RequireAny allows the request when the principal holds at least one code.
func (m Middleware) RequireAny(codes ...PermissionCode) func(http.Handler) http.Handler {
	return m.require("rbac require any", codes, PermissionSet.HasAny)
}

// RequireAll allows the request when the principal holds every code.
func (m Middleware) RequireAll(codes ...PermissionCode) func(http.Handler) http.Handler {
	return m.require("rbac require all", codes, PermissionSet.HasAll)
}

// WithPermission wraps a single handler with the permission gate.
func (m Middleware) WithPermission(code PermissionCode, h http.HandlerFunc) http.Handler {
	return m.RequirePermission(code)(h)
}

func (m Middleware) require(op string, codes []PermissionCode, allowed func(PermissionSet, ...PermissionCode) bool) func(http.Handler) http.Handler {
	if len(codes) == 0 {
		panic(op + ": at least one permission is required")
	}
	for _, c := range codes {
		if !c.Valid() {
			panic(op + ": unknown permission " + string(c))
		}
	}
	required := append([]PermissionCode(nil), codes...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			principal, _ := shared.PrincipalFromContext(r.Context())
			granted, err := m.Perms.PermissionsOf(r.Context(), principal.UserID)
			if err != nil {
				m.logger().Error(op, slog.String("user_id", principal.UserID.String()), slog.Any("error", err))
				m.observe(OutcomeError)
				httpx.RespondError(w, err)
				return
			}
			if !allowed(granted, required...) {
				m.logger().Warn("rbac forbidden",
					slog.String("user_id", principal.UserID.String()),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("required", required),
					slog.Any("missing", granted.Missing(required...)))
				m.observe(OutcomeForbidden)
				httpx.Forbidden(w)
				return
			}
			m.observe(OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate reuses a principal bound earlier in the chain or verifies the
// request credential. Malformed, expired and revoked credentials all produce
// the same 401.
func (m Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if _, ok := shared.PrincipalFromContext(r.Context()); ok {
		return r, true
	}
	raw := m.Auth.Credential(r)
	principal, err := m.Auth.Authenticate(r.Context(), raw)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthenticated) {
			if raw != "" {
				m.logger().Info("rbac unauthenticated", slog.String("path", r.URL.Path), slog.Any("reason", err))
			}
			m.observe(OutcomeUnauthenticated)
			httpx.Unauthorized(w)
			return r, false
		}
		m.logger().Error("rbac authenticate", slog.Any("error", err))
		m.observe(OutcomeError)
		httpx.RespondError(w, err)
		return r, false
	}
	return r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)), true
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m Middleware) observe(outcome string) {
	if m.Metrics != nil {
		m.Metrics.ObserveAuthz(outcome)
	}
}
