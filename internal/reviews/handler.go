package reviews

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

// Handler serves review endpoints.
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

// MountRoutes registers review routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermission(rbac.PermReviewsCreateOwn)).Post("/", h.create)
	r.With(h.rbac.RequirePermission(rbac.PermReviewsViewAll)).Get("/", h.list)
}

// MountPsychologistRoutes registers the per-profile listing on the
// psychologists router.
func (h *Handler) MountPsychologistRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermission(rbac.PermPsychologistsView)).Get("/{id}/reviews", h.forPsychologist)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpx.DecodeAndValidate(w, r, h.validate, &req) {
		return
	}
	principal, _ := rbac.CurrentPrincipal(r.Context())
	rv, err := h.service.Create(r.Context(), principal, req)
	if err != nil {
		h.fail(w, "create review", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.service.List(r.Context(), shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list reviews", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reviews": items, "pagination": page})
}

func (h *Handler) forPsychologist(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	items, page, err := h.service.ForPsychologist(r.Context(), id, shared.PageFromRequest(r))
	if err != nil {
		h.fail(w, "list psychologist reviews", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reviews": items, "pagination": page})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
