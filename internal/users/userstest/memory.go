// Package userstest provides an in-memory users repository that shares
// transactions with an rbactest graph store.
package userstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/rbac/rbactest"
	"github.com/psychohelp/psychohelp/internal/users"
)

// Repository implements users.RepositoryPort in memory.
type Repository struct {
	Graph *rbactest.Store

	mu    sync.Mutex
	users map[uuid.UUID]users.User
}

// NewRepository wraps graph. Users created here become visible to it.
func NewRepository(graph *rbactest.Store) *Repository {
	return &Repository{Graph: graph, users: map[uuid.UUID]users.User{}}
}

// WithTx runs fn inside a graph transaction. Inserted users are kept only
// when fn succeeds.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, users.TxRepository) error) error {
	var pending []users.User
	err := r.Graph.WithTx(ctx, func(ctx context.Context, gtx rbac.TxRepository) error {
		return fn(ctx, &txRepository{repo: r, graph: gtx, pending: &pending})
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range pending {
		r.users[u.ID] = u
	}
	return nil
}

// FindByID implements users.RepositoryPort.
func (r *Repository) FindByID(_ context.Context, id uuid.UUID) (users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

// FindByEmail implements users.RepositoryPort.
func (r *Repository) FindByEmail(_ context.Context, email string) (users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return users.User{}, users.ErrUserNotFound
}

// List implements users.RepositoryPort.
func (r *Repository) List(_ context.Context, filter users.ListFilter) ([]users.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(filter.Query)
	var all []users.User
	for _, u := range r.users {
		if q == "" || strings.Contains(strings.ToLower(u.Email), q) || strings.Contains(strings.ToLower(u.FullName()), q) {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	start := filter.Page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.Page.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

// UpdateProfile implements users.RepositoryPort.
func (r *Repository) UpdateProfile(_ context.Context, id uuid.UUID, update users.ProfileUpdate) (users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.FirstName, update.FirstName)
	set(&u.MiddleName, update.MiddleName)
	set(&u.LastName, update.LastName)
	set(&u.PhoneNumber, update.PhoneNumber)
	set(&u.SocialMedia, update.SocialMedia)
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return u, nil
}

// Delete removes the user and its role links.
func (r *Repository) Delete(id uuid.UUID) {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
	r.Graph.DeleteUser(id)
}

type txRepository struct {
	repo    *Repository
	graph   rbac.TxRepository
	pending *[]users.User
}

func (t *txRepository) InsertUser(_ context.Context, input users.CreateInput) (users.User, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, u := range t.repo.users {
		if u.Email == input.Email {
			return users.User{}, users.ErrEmailTaken
		}
	}
	for _, u := range *t.pending {
		if u.Email == input.Email {
			return users.User{}, users.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	u := users.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		FirstName:    input.FirstName,
		MiddleName:   input.MiddleName,
		LastName:     input.LastName,
		PhoneNumber:  input.PhoneNumber,
		SocialMedia:  input.SocialMedia,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	*t.pending = append(*t.pending, u)
	rbactest.RegisterUser(t.graph, u.ID)
	return u, nil
}

func (t *txRepository) Graph() rbac.TxRepository {
	return t.graph
}
