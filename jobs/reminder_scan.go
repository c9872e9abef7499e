package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/psychohelp/psychohelp/internal/appointments"
	jobmetrics "github.com/psychohelp/psychohelp/internal/jobs"
)

const (
	defaultReminderLimit = 100
	enqueueConcurrency   = 8
)

// ReminderClaimer hands out due reminders exactly once.
type ReminderClaimer interface {
	ClaimDueReminders(ctx context.Context, limit int) ([]appointments.Reminder, error)
}

// MailEnqueuer queues outgoing mail.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ReminderScanJob turns due appointment reminders into mail tasks.
type ReminderScanJob struct {
	Claimer ReminderClaimer
	Mail    MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReminderScanJob initialises the reminder scan handler.
func NewReminderScanJob(claimer ReminderClaimer, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderScanJob {
	return &ReminderScanJob{Claimer: claimer, Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle executes one scan. A reminder whose mail cannot be queued is counted
// and logged; it is not claimed again.
func (j *ReminderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Claimer == nil || j.Mail == nil {
		return errors.New("reminder scan: handler not configured")
	}
	var payload ReminderScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultReminderLimit
	}

	start := time.Now()
	logger := j.logger()

	due, err := j.Claimer.ClaimDueReminders(ctx, payload.Limit)
	if err != nil {
		logger.Error("claim reminders", slog.Any("error", err))
		return err
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enqueueConcurrency)
	for _, rem := range due {
		g.Go(func() error {
			if _, err := j.Mail.EnqueueSendEmail(gctx, reminderMail(rem)); err != nil {
				failed.Add(1)
				logger.Error("enqueue reminder",
					slog.String("appointment_id", rem.AppointmentID.String()),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	lost := int(failed.Load())
	j.Metrics.AddReminders("enqueued", len(due)-lost)
	j.Metrics.AddReminders("failed", lost)
	logger.Info("completed reminder scan",
		slog.Int("claimed", len(due)),
		slog.Int("failed", lost),
		slog.Duration("duration", time.Since(start)))
	if lost > 0 {
		return fmt.Errorf("reminder scan: %d of %d reminders not queued", lost, len(due))
	}
	return nil
}

func reminderMail(rem appointments.Reminder) SendEmailPayload {
	where := "online"
	if rem.Type == appointments.TypeOffline && rem.Venue != "" {
		where = rem.Venue
	}
	return SendEmailPayload{
		To:      rem.PatientEmail,
		Subject: "Appointment reminder",
		Body: fmt.Sprintf("Hello %s, your appointment with %s is on %s (%s).",
			rem.PatientName, rem.PsychologistName, rem.ScheduledTime.UTC().Format("2006-01-02 15:04 MST"), where),
	}
}

func (j *ReminderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReminderScan))
	}
	return slog.Default().With(slog.String("job", TaskReminderScan))
}
