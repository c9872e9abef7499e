package jobs

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/psychohelp/psychohelp/internal/platform/httpx"
)

// QueueInspector is the subset of *asynq.Inspector the health endpoint reads.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue health over HTTP.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler builds a Handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(queuePriorities))
	for name := range queuePriorities {
		names = append(names, name)
	}
	sort.Strings(names)

	known, err := h.knownQueues()
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue unavailable")
		return
	}
	queues := make([]queueHealth, 0, len(names))
	for _, name := range names {
		if _, ok := known[name]; !ok {
			queues = append(queues, queueHealth{Queue: name})
			continue
		}
		q, err := h.queue(name)
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue unavailable")
			return
		}
		queues = append(queues, q)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": queues})
}

// knownQueues lists queues Redis has seen. A queue nothing was ever enqueued
// on is absent and reports zeros.
func (h *Handler) knownQueues() (map[string]struct{}, error) {
	known := map[string]struct{}{}
	if h.inspector == nil {
		return known, nil
	}
	names, err := h.inspector.Queues()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		known[name] = struct{}{}
	}
	return known, nil
}

func (h *Handler) queue(name string) (queueHealth, error) {
	info, err := h.inspector.GetQueueInfo(name)
	if err != nil {
		return queueHealth{}, err
	}
	return queueHealth{Queue: name, Pending: info.Pending, Active: info.Active, Retry: info.Retry, Failed: info.Failed}, nil
}
