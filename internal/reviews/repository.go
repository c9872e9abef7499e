package reviews

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psychohelp/psychohelp/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectReview = `
	SELECT r.id, r.appointment_id, r.author_id, a.psychologist_id, r.rating, r.comment, r.created_at
	FROM reviews r
	JOIN appointments a ON a.id = r.appointment_id`

func scanReview(row pgx.Row) (Review, error) {
	var rv Review
	err := row.Scan(&rv.ID, &rv.AppointmentID, &rv.AuthorID, &rv.PsychologistID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	return rv, err
}

// Insert stores a review. The unique appointment_id constraint enforces one
// review per appointment.
func (r *Repository) Insert(ctx context.Context, authorID uuid.UUID, req CreateRequest) (Review, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (appointment_id, author_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, req.AppointmentID, authorID, req.Rating, req.Comment).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Review{}, ErrAlreadyReviewed
		}
		return Review{}, err
	}
	return scanReview(r.pool.QueryRow(ctx, selectReview+` WHERE r.id = $1`, id))
}

// List returns one page of reviews, newest first, and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Review, int, error) {
	var (
		clause string
		args   []any
	)
	if filter.PsychologistID != nil {
		args = append(args, *filter.PsychologistID)
		clause = ` WHERE a.psychologist_id = $1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM reviews r JOIN appointments a ON a.id = r.appointment_id`+clause, args...).
		Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.Page.PerPage, filter.Page.Offset())
	rows, err := r.pool.Query(ctx, selectReview+clause+fmt.Sprintf(` ORDER BY r.created_at DESC, r.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rv)
	}
	return out, total, rows.Err()
}
