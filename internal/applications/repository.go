package applications

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const applicationColumns = `id, user_id, first_name, last_name, email, phone, problem_description,
	preferred_campus, university_status, status, appointment_id, created_at, updated_at`

func scanApplication(row pgx.Row) (Application, error) {
	var a Application
	err := row.Scan(&a.ID, &a.UserID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.ProblemDescription,
		&a.PreferredCampus, &a.UniversityStatus, &a.Status, &a.AppointmentID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Application{}, ErrNotFound
	}
	return a, err
}

// Insert stores a new application.
func (r *Repository) Insert(ctx context.Context, userID *uuid.UUID, req SubmitRequest) (Application, error) {
	return scanApplication(r.pool.QueryRow(ctx, `
		INSERT INTO applications (user_id, first_name, last_name, email, phone, problem_description,
		                          preferred_campus, university_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+applicationColumns,
		userID, req.FirstName, req.LastName, req.Email, req.Phone, req.ProblemDescription,
		req.PreferredCampus, req.UniversityStatus))
}

// Get fetches an application by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Application, error) {
	return scanApplication(r.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

// List returns one page of applications, newest first, and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Application, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM applications`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.PerPage, filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM applications%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		applicationColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// UpdateStatus changes the status of an open application. A nil appointmentID
// keeps the current link.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, appointmentID *uuid.UUID) (Application, error) {
	a, err := scanApplication(r.pool.QueryRow(ctx, `
		UPDATE applications SET
			status         = $2,
			appointment_id = COALESCE($3, appointment_id),
			updated_at     = NOW()
		WHERE id = $1 AND status IN ('new', 'in_progress')
		RETURNING `+applicationColumns, id, status, appointmentID))
	if !errors.Is(err, ErrNotFound) {
		return a, err
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Application{}, err
	}
	if exists {
		return Application{}, ErrClosed
	}
	return Application{}, ErrNotFound
}
