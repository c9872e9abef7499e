package applications

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// Handler serves intake application endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers application routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.OptionalAuthenticate).Post("/", h.submit)
	r.With(h.rbac.RequirePermission(rbac.PermAppointmentsViewAll)).Get("/", h.list)
	r.With(h.rbac.Authenticate).Get("/{id}", h.get)
	r.With(h.rbac.RequirePermission(rbac.PermAppointmentsAccept)).Patch("/{id}/status", h.setStatus)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	var principal *shared.Principal
	if p, ok := rbac.CurrentPrincipal(r.Context()); ok {
		principal = &p
	}
	app, err := h.service.Submit(r.Context(), principal, req)
	if err != nil {
		h.fail(w, "submit application", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, app)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if err := h.validate.Var(string(status), "omitempty,oneof=new in_progress completed rejected"); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status")
		return
	}
	items, page, err := h.service.List(r.Context(), status, shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list applications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applications": items, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	app, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "get application", err)
		return
	}
	httpx.JSON(w, http.StatusOK, app)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	app, err := h.service.SetStatus(r.Context(), principal.UserID, id, req)
	if err != nil {
		h.fail(w, "set application status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, app)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
