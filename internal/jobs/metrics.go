package jobmetrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the worker collectors. A nil *Metrics records nothing.
type Metrics struct {
	tasks     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	reminders *prometheus.CounterVec
	mail      *prometheus.CounterVec
}

// NewMetrics registers the worker collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psychohelp_jobs_total",
			Help: "Processed tasks by type and status.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psychohelp_job_duration_seconds",
			Help:    "Task handler duration in seconds.",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 30},
		}, []string{"task"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psychohelp_appointment_reminders_total",
			Help: "Appointment reminders handed to the mail queue by result.",
		}, []string{"result"}),
		mail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psychohelp_mail_total",
			Help: "Mail tasks by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.tasks, m.duration, m.reminders, m.mail)
	return m
}

// Middleware records status and duration of every task the mux dispatches.
// asynq.SkipRetry counts as skipped, not failed.
func (m *Metrics) Middleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			m.observe(t.Type(), start, err)
			return err
		})
	}
}

func (m *Metrics) observe(task string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, statusOf(err)).Inc()
	m.duration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, asynq.SkipRetry):
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// AddReminders counts reminders by result: enqueued or failed.
func (m *Metrics) AddReminders(result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reminders.WithLabelValues(result).Add(float64(count))
}

// MailOutcome counts one mail task: delivered or rejected.
func (m *Metrics) MailOutcome(outcome string) {
	if m == nil {
		return
	}
	m.mail.WithLabelValues(outcome).Inc()
}
