package jobmetrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	boom := errors.New("boom")
	results := map[string]error{
		"ok":   nil,
		"bad":  boom,
		"skip": fmt.Errorf("decode: %w", asynq.SkipRetry),
	}
	handler := m.Middleware()(asynq.HandlerFunc(func(_ context.Context, t *asynq.Task) error {
		return results[t.Type()]
	}))

	for task, want := range results {
		err := handler.ProcessTask(context.Background(), asynq.NewTask(task, nil))
		assert.ErrorIs(t, err, want)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("ok", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("bad", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("skip", StatusSkipped)))
	assert.Equal(t, 3, testutil.CollectAndCount(m.duration))
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddReminders("enqueued", 3)
	m.AddReminders("enqueued", 0)
	m.MailOutcome("delivered")
	m.MailOutcome("delivered")
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reminders.WithLabelValues("enqueued")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.mail.WithLabelValues("delivered")))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.AddReminders("failed", 1)
	m.MailOutcome("rejected")
	handler := m.Middleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	assert.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask("ok", nil)))
}
