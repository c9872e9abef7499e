package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `id, patient_id, psychologist_id, type, reason, status, scheduled_time, remind_time,
	reminded_at, last_change_time, venue, comment, created_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PsychologistID, &a.Type, &a.Reason, &a.Status, &a.ScheduledTime,
		&a.RemindTime, &a.RemindedAt, &a.LastChangeTime, &a.Venue, &a.Comment, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

// Insert stores a new pending appointment.
func (r *Repository) Insert(ctx context.Context, in NewAppointment) (Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, psychologist_id, type, reason, status, scheduled_time, remind_time, venue, last_change_time, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8, $8)
		RETURNING `+appointmentColumns,
		in.PatientID, in.PsychologistID, in.Type, in.Reason, in.ScheduledTime, in.RemindTime, in.Venue, in.At))
}

// Get fetches one appointment.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

// List returns one page of appointments matching filter and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Appointment, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Participant != nil {
		p := arg(*filter.Participant)
		where = append(where, `(patient_id = `+p+` OR psychologist_id IN (SELECT id FROM psychologists WHERE user_id = `+p+`))`)
	}
	if filter.PsychologistID != nil {
		where = append(where, `psychologist_id = `+arg(*filter.PsychologistID))
	}
	if filter.Status != "" {
		where = append(where, `status = `+arg(filter.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := arg(filter.Page.PerPage)
	offset := arg(filter.Page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments`+clause+
		` ORDER BY scheduled_time, id LIMIT `+limit+` OFFSET `+offset, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Transition moves the appointment to status `to` when its current status is
// one of from. It fails with ErrInvalidTransition otherwise.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, comment string, at time.Time) (Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, comment = CASE WHEN $4 = '' THEN comment ELSE $4 END, last_change_time = $5
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(from), to, comment, at))
	if errors.Is(err, ErrNotFound) {
		return Appointment{}, r.missOrConflict(ctx, id)
	}
	return a, err
}

// Reschedule moves a pending or accepted appointment and resets its reminder.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, scheduled time.Time, remind *time.Time, venue *string, comment string, at time.Time) (Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_time = $3, remind_time = $4, reminded_at = NULL,
		    venue = COALESCE($5, venue),
		    comment = CASE WHEN $6 = '' THEN comment ELSE $6 END,
		    last_change_time = $7
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+appointmentColumns, id, statusStrings(reschedulable), scheduled, remind, venue, comment, at))
	if errors.Is(err, ErrNotFound) {
		return Appointment{}, r.missOrConflict(ctx, id)
	}
	return a, err
}

// Delete removes an appointment.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDueReminders marks up to limit accepted appointments whose reminder is
// due as reminded and returns them. Concurrent claimers never share a row.
func (r *Repository) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM appointments
			WHERE status = 'accepted' AND reminded_at IS NULL AND remind_time <= $1 AND scheduled_time > $1
			ORDER BY remind_time
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE appointments a SET reminded_at = $1
		FROM due, users u, psychologists p, users pu
		WHERE a.id = due.id AND u.id = a.patient_id AND p.id = a.psychologist_id AND pu.id = p.user_id
		RETURNING a.id, u.email, u.first_name || ' ' || u.last_name, pu.first_name || ' ' || pu.last_name,
		          a.scheduled_time, a.type, a.venue`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.AppointmentID, &rem.PatientEmail, &rem.PatientName, &rem.PsychologistName,
			&rem.ScheduledTime, &rem.Type, &rem.Venue); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *Repository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrInvalidTransition
	}
	return ErrNotFound
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
