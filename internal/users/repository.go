package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
)

// TxRepository exposes writes that must share a transaction with role links.
type TxRepository interface {
	InsertUser(ctx context.Context, input CreateInput) (User, error)
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

const userColumns = `id, email, password_hash, first_name, middle_name, last_name, phone_number, social_media, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.MiddleName, &u.LastName,
		&u.PhoneNumber, &u.SocialMedia, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// FindByID fetches a user by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByEmail fetches a user by normalised email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// List returns one page of users and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	pattern := "%" + strings.ToLower(filter.Query) + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM users
		WHERE $1 = '%%' OR lower(email) LIKE $1 OR lower(first_name || ' ' || last_name) LIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE $1 = '%%' OR lower(email) LIKE $1 OR lower(first_name || ' ' || last_name) LIKE $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`, pattern, filter.Page.PerPage, filter.Page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// UpdateProfile applies the non-nil fields of update.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			first_name   = COALESCE($2, first_name),
			middle_name  = COALESCE($3, middle_name),
			last_name    = COALESCE($4, last_name),
			phone_number = COALESCE($5, phone_number),
			social_media = COALESCE($6, social_media),
			updated_at   = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, update.FirstName, update.MiddleName, update.LastName, update.PhoneNumber, update.SocialMedia))
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) InsertUser(ctx context.Context, input CreateInput) (User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, middle_name, last_name, phone_number, social_media)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		input.Email, input.PasswordHash, input.FirstName, input.MiddleName, input.LastName, input.PhoneNumber, input.SocialMedia))
	if shared.IsUniqueViolation(err) {
		return User{}, ErrEmailTaken
	}
	return u, err
}

func (t *txRepository) Graph() rbac.TxRepository {
	return rbac.NewTxStore(t.tx)
}
