//go:build integration

package rbac_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/psychohelp/psychohelp/internal/platform/db"
	"github.com/psychohelp/psychohelp/internal/rbac"
)

// setupPostgres starts a migrated and seeded database.
func setupPostgres(t *testing.T) (*pgxpool.Pool, *rbac.Service) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("psychohelp_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(dsn, nil))

	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	svc := rbac.NewService(rbac.NewStore(pool), nil, nil)
	_, err = svc.Seed(ctx)
	require.NoError(t, err)
	return pool, svc
}

func insertUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (email, password_hash, first_name, last_name)
		VALUES ($1, 'x', 'Test', 'User') RETURNING id`, uuid.NewString()+"@example.com").Scan(&id)
	require.NoError(t, err)
	return id
}

func TestPostgresAssignRoleConcurrentSingleWinner(t *testing.T) {
	pool, svc := setupPostgres(t)
	user := insertUser(t, pool)

	const workers = 16
	var (
		wins  atomic.Int32
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			changed, err := svc.AssignRole(context.Background(), uuid.Nil, user, "user")
			if err != nil {
				errs <- err
				return
			}
			if changed {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), wins.Load())

	var links, audits int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM users_roles WHERE user_id = $1`, user).Scan(&links))
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM audit_logs WHERE entity_id = $1 AND action = 'role.assign'`, user.String()).Scan(&audits))
	assert.Equal(t, 1, links)
	assert.Equal(t, 1, audits)
}

func TestPostgresManualGrantPromotesProfileLink(t *testing.T) {
	pool, svc := setupPostgres(t)
	ctx := context.Background()
	user := insertUser(t, pool)

	err := rbac.NewStore(pool).WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		_, err := svc.GrantInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return err
	})
	require.NoError(t, err)

	changed, err := svc.AssignRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)
	assert.False(t, changed)

	roles, err := svc.RolesOf(ctx, user)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, rbac.SourceManual, roles[0].Source)
}

func TestPostgresReseedKeepsEditedBundles(t *testing.T) {
	_, svc := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, svc.SetRolePermissions(ctx, uuid.Nil, "user", []string{"psychologists.view"}))
	report, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, rbac.SeedReport{}, report)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	for _, role := range roles {
		if role.Code == rbac.RoleUser {
			assert.Equal(t, []rbac.PermissionCode{rbac.PermPsychologistsView}, role.Permissions)
		}
	}
}
