package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/psychohelp/psychohelp/internal/jobs"
)

const (
	// QueueMail carries outbound mail and is drained first.
	QueueMail = "mail"
	// QueueScheduled carries cron-triggered scans.
	QueueScheduled = "scheduled"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskReminderScan is the cron task that hands due appointment reminders to the mail queue.
	TaskReminderScan = "appointments:reminder_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// ReminderScanPayload bounds one scan.
type ReminderScanPayload struct {
	Limit int `json:"limit"`
}

// NewReminderScanTask constructs the cron task.
func NewReminderScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(ReminderScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderScan, data), nil
}

// MailHandler processes TaskTypeSendEmail tasks. Delivery is logged only;
// there is no SMTP transport.
type MailHandler struct {
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes one mail task.
func (h MailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		h.Metrics.MailOutcome("rejected")
		return asynq.SkipRetry
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mail delivered",
		slog.String("job", TaskTypeSendEmail),
		slog.String("from", h.From),
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	h.Metrics.MailOutcome("delivered")
	return nil
}
