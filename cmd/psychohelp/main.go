package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/psychohelp/psychohelp/internal/app"
	"github.com/psychohelp/psychohelp/internal/applications"
	"github.com/psychohelp/psychohelp/internal/appointments"
	"github.com/psychohelp/psychohelp/internal/audit"
	"github.com/psychohelp/psychohelp/internal/auth"
	"github.com/psychohelp/psychohelp/internal/observability"
	"github.com/psychohelp/psychohelp/internal/platform/cache"
	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/psychologists"
	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/reviews"
	"github.com/psychohelp/psychohelp/internal/roles"
	"github.com/psychohelp/psychohelp/internal/shared"
	"github.com/psychohelp/psychohelp/internal/users"
	"github.com/psychohelp/psychohelp/jobs"
)

func main() {
	if shared.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("psychohelp", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	codec, err := auth.NewCodec(cfg.TokenConfig())
	if err != nil {
		return err
	}
	var denylist *auth.Denylist
	if cfg.TokenRevocation {
		denylist = auth.NewDenylist(redisClient)
	}
	authenticator := auth.NewAuthenticator(codec, denylist, cfg.TokenCookieName)

	rbacService := rbac.NewService(rbac.NewStore(pool), rbac.NewPermissionCache(redisClient, cfg.PermissionCacheTTL), logger)
	if cfg.SeedOnStart {
		if _, err := rbacService.Seed(ctx); err != nil {
			return err
		}
	}
	rbacMiddleware := rbac.Middleware{Auth: authenticator, Perms: rbacService, Logger: logger, Metrics: metrics}

	usersService := users.NewService(users.NewRepository(pool), rbacService, logger)
	authService := auth.NewService(usersService, rbacService, authenticator, logger)
	psychologistService := psychologists.NewService(psychologists.NewRepository(pool), rbacService, logger)
	appointmentRepo := appointments.NewRepository(pool)
	appointmentService := appointments.NewService(appointmentRepo, psychologistService, rbacService, cfg.ReminderLookahead, logger)
	applicationService := applications.NewService(applications.NewRepository(pool), rbacService, logger)
	reviewService := reviews.NewService(reviews.NewRepository(pool), appointmentRepo, logger)

	inspector := asynq.NewInspector(cfg.RedisOptions().AsynqOpts())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthHandler:         auth.NewHandler(logger, authService, rbacMiddleware, cfg.CookieConfig(), cfg.LoginLimitPerMin),
		UsersHandler:        users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:        roles.NewHandler(logger, roles.NewService(rbacService), rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		PsychologistHandler: psychologists.NewHandler(logger, psychologistService, rbacMiddleware),
		AppointmentHandler:  appointments.NewHandler(logger, appointmentService, rbacMiddleware),
		ApplicationHandler:  applications.NewHandler(logger, applicationService, rbacMiddleware),
		ReviewHandler:       reviews.NewHandler(logger, reviewService, rbacMiddleware),
		AuditHandler:        audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
