package psychologists

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// TxRepository exposes profile writes that share a transaction with role links.
type TxRepository interface {
	Insert(ctx context.Context, input CreateInput) (Psychologist, error)
	Delete(ctx context.Context, id uuid.UUID) (Psychologist, error)
	Graph() rbac.TxRepository
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectProfile = `
	SELECT p.id, p.user_id, u.first_name, u.last_name, p.experience, p.qualification, p.consult_areas,
	       p.description, p.short_description, p.office, p.education, p.photo, p.created_at, p.updated_at
	FROM psychologists p
	JOIN users u ON u.id = p.user_id`

func scanProfile(row pgx.Row) (Psychologist, error) {
	var p Psychologist
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Experience, &p.Qualification, &p.ConsultAreas,
		&p.Description, &p.ShortDescription, &p.Office, &p.Education, &p.Photo, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Psychologist{}, ErrNotFound
	}
	return p, err
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get fetches a profile by its id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Psychologist, error) {
	return scanProfile(r.pool.QueryRow(ctx, selectProfile+` WHERE p.id = $1`, id))
}

// GetByUserID fetches the profile owned by userID.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (Psychologist, error) {
	return scanProfile(r.pool.QueryRow(ctx, selectProfile+` WHERE p.user_id = $1`, userID))
}

// List returns one page of profiles and the total count.
func (r *Repository) List(ctx context.Context, page shared.PageRequest) ([]Psychologist, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM psychologists`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, selectProfile+` ORDER BY u.last_name, u.first_name, p.id LIMIT $1 OFFSET $2`,
		page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Psychologist
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// UpdateByUserID applies the non-nil fields to the profile owned by userID.
func (r *Repository) UpdateByUserID(ctx context.Context, userID uuid.UUID, u ProfileUpdate) (Psychologist, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		UPDATE psychologists SET
			experience        = COALESCE($2, experience),
			qualification     = COALESCE($3, qualification),
			consult_areas     = COALESCE($4, consult_areas),
			description       = COALESCE($5, description),
			short_description = COALESCE($6, short_description),
			office            = COALESCE($7, office),
			education         = COALESCE($8, education),
			photo             = COALESCE($9, photo),
			updated_at        = NOW()
		WHERE user_id = $1
		RETURNING id`,
		userID, u.Experience, u.Qualification, u.ConsultAreas, u.Description, u.ShortDescription, u.Office, u.Education, u.Photo).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Psychologist{}, ErrNotFound
	}
	if err != nil {
		return Psychologist{}, err
	}
	return r.Get(ctx, id)
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Insert(ctx context.Context, in CreateInput) (Psychologist, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO psychologists (user_id, experience, qualification, consult_areas, description, short_description, office, education, photo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		in.UserID, in.Experience, in.Qualification, in.ConsultAreas, in.Description, in.ShortDescription, in.Office, in.Education, in.Photo).Scan(&id)
	if shared.IsUniqueViolation(err) {
		return Psychologist{}, ErrProfileExists
	}
	if err != nil {
		return Psychologist{}, err
	}
	return scanProfile(t.tx.QueryRow(ctx, selectProfile+` WHERE p.id = $1`, id))
}

func (t *txRepository) Delete(ctx context.Context, id uuid.UUID) (Psychologist, error) {
	p, err := scanProfile(t.tx.QueryRow(ctx, selectProfile+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		return Psychologist{}, err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM psychologists WHERE id = $1`, id); err != nil {
		if shared.IsForeignKeyViolation(err) {
			return Psychologist{}, ErrProfileInUse
		}
		return Psychologist{}, err
	}
	return p, nil
}

func (t *txRepository) Graph() rbac.TxRepository {
	return rbac.NewTxStore(t.tx)
}
