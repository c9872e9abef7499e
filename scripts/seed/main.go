package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/psychohelp/psychohelp/internal/app"
	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/shared"
	"github.com/psychohelp/psychohelp/internal/users"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if err := db.Migrate(cfg.PGDSN, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	rbacService := rbac.NewService(rbac.NewStore(pool), nil, logger)
	report, err := rbacService.Seed(ctx)
	if err != nil {
		return err
	}
	logger.Info("catalogue seeded",
		slog.Int("permissions", report.Permissions),
		slog.Int("roles", report.Roles),
		slog.Int("links", report.Links))

	if cfg.AdminEmail == "" {
		return nil
	}
	userService := users.NewService(users.NewRepository(pool), rbacService, logger)
	return bootstrapAdmin(ctx, userService, rbacService, cfg.AdminEmail, cfg.AdminPassword, logger)
}

// bootstrapAdmin ensures an account with the admin role exists for email.
// An existing account keeps its password.
func bootstrapAdmin(ctx context.Context, accounts *users.Service, roles *rbac.Service, email, password string, logger *slog.Logger) error {
	user, err := accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		if len(password) < 8 {
			return errors.New("ADMIN_PASSWORD must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user, err = accounts.Create(ctx, users.CreateInput{
			Email:        email,
			PasswordHash: string(hash),
			FirstName:    "Admin",
			LastName:     "Psychohelp",
		})
		if errors.Is(err, users.ErrEmailTaken) {
			user, err = accounts.GetByEmail(ctx, email)
		}
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
	default:
		return err
	}

	granted, err := roles.AssignRole(ctx, uuid.Nil, user.ID, string(rbac.RoleAdmin))
	if err != nil {
		return fmt.Errorf("assign admin: %w", err)
	}
	logger.Info("admin ready", slog.String("user_id", user.ID.String()), slog.Bool("granted", granted))
	return nil
}
