package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/psychohelp/psychohelp/internal/applications"
	"github.com/psychohelp/psychohelp/internal/appointments"
	"github.com/psychohelp/psychohelp/internal/audit"
	"github.com/psychohelp/psychohelp/internal/auth"
	"github.com/psychohelp/psychohelp/internal/observability"
	"github.com/psychohelp/psychohelp/internal/platform/httpx"
	"github.com/psychohelp/psychohelp/internal/psychologists"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/reviews"
	"github.com/psychohelp/psychohelp/internal/roles"
	"github.com/psychohelp/psychohelp/internal/users"
	"github.com/psychohelp/psychohelp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	AuthHandler         *auth.Handler
	UsersHandler        *users.Handler
	RolesHandler        *roles.Handler
	PermissionsHandler  *rbac.PermissionsHandler
	PsychologistHandler *psychologists.Handler
	AppointmentHandler  *appointments.Handler
	ApplicationHandler  *applications.Handler
	ReviewHandler       *reviews.Handler
	JobHandler          *jobs.Handler
	AuditHandler        *audit.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.PsychologistHandler != nil || params.ReviewHandler != nil {
		r.Route("/psychologists", func(r chi.Router) {
			if params.PsychologistHandler != nil {
				params.PsychologistHandler.MountRoutes(r)
			}
			if params.ReviewHandler != nil {
				params.ReviewHandler.MountPsychologistRoutes(r)
			}
		})
	}
	if params.AppointmentHandler != nil {
		r.Route("/appointments", params.AppointmentHandler.MountRoutes)
	}
	if params.ApplicationHandler != nil {
		r.Route("/applications", params.ApplicationHandler.MountRoutes)
	}
	if params.ReviewHandler != nil {
		r.Route("/reviews", params.ReviewHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
