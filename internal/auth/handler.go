package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// CookieConfig controls the token cookies set by the handler.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Secure      bool
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	rbac        rbac.Middleware
	cookies     CookieConfig
	loginLimit  int
	loginWindow time.Duration
}

// NewHandler constructs a Handler instance. loginLimit caps login and
// register attempts per client IP per minute; zero disables the cap.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, cookies CookieConfig, loginLimit int) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		rbac:        rbac,
		cookies:     cookies,
		loginLimit:  loginLimit,
		loginWindow: time.Minute,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.loginLimit > 0 {
			r.Use(httprate.Limit(h.loginLimit, h.loginWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Authenticate)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	user, pair, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	h.setCookies(w, pair)
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user, "tokens": newTokenResponse(pair)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpx.DecodeAndValidate(w, r, h.validator, &req) {
		return
	}
	user, pair, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrInvalidCredentials.Error())
			return
		}
		h.fail(w, "login", err)
		return
	}
	h.setCookies(w, pair)
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user, "tokens": newTokenResponse(pair)})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshCredential(r)
	if raw == "" {
		var req RefreshRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		raw = req.RefreshToken
	}
	pair, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	h.setCookies(w, pair)
	httpx.JSON(w, http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.CurrentPrincipal(r.Context())
	if err := h.service.Logout(r.Context(), principal, h.refreshCredential(r)); err != nil {
		h.fail(w, "logout", err)
		return
	}
	h.clearCookies(w)
	httpx.NoContent(w)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.CurrentPrincipal(r.Context())
	session, err := h.service.Session(r.Context(), principal)
	if err != nil {
		h.fail(w, "session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) refreshCredential(r *http.Request) string {
	if h.cookies.RefreshName == "" {
		return ""
	}
	if c, err := r.Cookie(h.cookies.RefreshName); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) setCookies(w http.ResponseWriter, pair Pair) {
	if h.cookies.AccessName != "" {
		http.SetCookie(w, h.cookie(h.cookies.AccessName, pair.Access.Value, "/", pair.Access.ExpiresAt))
	}
	if h.cookies.RefreshName != "" {
		http.SetCookie(w, h.cookie(h.cookies.RefreshName, pair.Refresh.Value, "/auth", pair.Refresh.ExpiresAt))
	}
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	if h.cookies.AccessName != "" {
		c := h.cookie(h.cookies.AccessName, "", "/", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
	if h.cookies.RefreshName != "" {
		c := h.cookie(h.cookies.RefreshName, "", "/auth", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
