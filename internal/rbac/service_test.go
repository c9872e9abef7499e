package rbac_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psychohelp/psychohelp/internal/rbac"
	"github.com/psychohelp/psychohelp/internal/rbac/rbactest"
)

func newService(t *testing.T, store *rbactest.Store, withCache bool) *rbac.Service {
	t.Helper()
	var cache *rbac.PermissionCache
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cache = rbac.NewPermissionCache(client, time.Minute)
	}
	return rbac.NewService(store, cache, nil)
}

func TestUserWithoutRolesHasNoPermissions(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	user := store.NewUser()

	set, err := svc.PermissionsOf(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, set)

	ok, err := svc.UserHasPermission(context.Background(), user, rbac.PermAppointmentsViewOwn)
	require.NoError(t, err)
	assert.False(t, ok)

	set, err = svc.PermissionsOf(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestAssignPsychologistGrantsBundle(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	ctx := context.Background()
	user := store.NewUser()

	ok, err := svc.UserHasPermission(ctx, user, rbac.PermAppointmentsAccept)
	require.NoError(t, err)
	require.False(t, ok)

	changed, err := svc.AssignRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)
	assert.True(t, changed)

	ok, err = svc.UserHasPermission(ctx, user, rbac.PermAppointmentsAccept)
	require.NoError(t, err)
	assert.True(t, ok)

	roles, err := svc.RolesOf(ctx, user)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, rbac.RolePsychologist, roles[0].Code)
	assert.Equal(t, rbac.SourceManual, roles[0].Source)
	assert.False(t, roles[0].AssignedAt.IsZero())
}

func TestAssignRoleIdempotent(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	admin, user := store.NewUser(), store.NewUser()

	changed, err := svc.AssignRole(ctx, admin, user, "admin")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.AssignRole(ctx, admin, user, "admin")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, store.LinkCount(user, rbac.RoleAdmin))

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "role.assign", logs[0].Action)
	assert.Equal(t, admin, logs[0].ActorID)
	assert.Equal(t, user.String(), logs[0].EntityID)
}

func TestAssignRoleConcurrentSingleWinner(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	user := store.NewUser()

	const workers = 32
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
	assert.Equal(t, 1, store.LinkCount(user, rbac.RoleUser))
}

func TestAssignRoleNotFound(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	user := store.NewUser()

	_, err := svc.AssignRole(ctx, uuid.Nil, user, "Admin")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)

	_, err = svc.AssignRole(ctx, uuid.Nil, uuid.New(), "admin")
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	assert.Empty(t, store.AuditLogs())
}

func TestRemoveRole(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	ctx := context.Background()
	user := store.NewUser()

	changed, err := svc.RemoveRole(ctx, uuid.Nil, user, "admin")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = svc.AssignRole(ctx, uuid.Nil, user, "admin")
	require.NoError(t, err)
	ok, err := svc.UserHasPermission(ctx, user, rbac.PermRolesAssign)
	require.NoError(t, err)
	require.True(t, ok)

	changed, err = svc.RemoveRole(ctx, uuid.Nil, user, "admin")
	require.NoError(t, err)
	assert.True(t, changed)

	ok, err = svc.UserHasPermission(ctx, user, rbac.PermRolesAssign)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.RemoveRole(ctx, uuid.Nil, user, "superuser")
	assert.ErrorIs(t, err, rbac.ErrRoleNotFound)
	_, err = svc.RemoveRole(ctx, uuid.Nil, uuid.New(), "admin")
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
}

func TestRemoveRoleIgnoresLinkSource(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	user := store.NewUser()

	err := store.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		_, err := svc.GrantInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return err
	})
	require.NoError(t, err)

	changed, err := svc.RemoveRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestRevokeInTxOnlySource(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	user := store.NewUser()

	_, err := svc.AssignRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)

	var changed bool
	err = store.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		var txErr error
		changed, txErr = svc.RevokeInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return txErr
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, store.LinkCount(user, rbac.RolePsychologist))
}

func TestAssignRoleRetriesSerializationFailure(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	user := store.NewUser()
	store.FailTx = []error{&pgconn.PgError{Code: "40001"}}

	changed, err := svc.AssignRole(context.Background(), uuid.Nil, user, "user")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSeedIdempotent(t *testing.T) {
	store := rbactest.NewStore()
	svc := newService(t, store, true)
	ctx := context.Background()

	report, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(rbac.PermissionCatalog()), report.Permissions)
	assert.Equal(t, len(rbac.RoleCatalog()), report.Roles)
	links := 0
	for _, def := range rbac.RoleCatalog() {
		links += len(def.Permissions)
	}
	assert.Equal(t, links, report.Links)

	report, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, rbac.SeedReport{}, report)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, len(rbac.RoleCatalog()))

	role, err := svc.RoleByCode(ctx, "content_manager")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleContentManager, role.Code)
}

func TestReseedKeepsEditedBundles(t *testing.T) {
	store := rbactest.NewStore()
	svc := newService(t, store, true)
	ctx := context.Background()

	_, err := svc.Seed(ctx)
	require.NoError(t, err)
	err = svc.SetRolePermissions(ctx, uuid.Nil, "user", []string{"psychologists.view"})
	require.NoError(t, err)

	user := store.NewUser()
	_, err = svc.AssignRole(ctx, uuid.Nil, user, "user")
	require.NoError(t, err)

	report, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Links)

	set, err := svc.PermissionsOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []rbac.PermissionCode{rbac.PermPsychologistsView}, set.Codes())
	assert.False(t, set.Has(rbac.PermAppointmentsCreateOwn))
}

func TestManualGrantPromotesProfileLink(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	user := store.NewUser()

	err := store.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		_, err := svc.GrantInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return err
	})
	require.NoError(t, err)

	changed, err := svc.AssignRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, rbac.SourceManual, store.LinkSourceOf(user, rbac.RolePsychologist))

	var revoked bool
	err = store.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		var txErr error
		revoked, txErr = svc.RevokeInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return txErr
	})
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Equal(t, 1, store.LinkCount(user, rbac.RolePsychologist))
}

func TestProfileGrantKeepsManualLink(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, false)
	ctx := context.Background()
	user := store.NewUser()

	_, err := svc.AssignRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)
	err = store.WithTx(ctx, func(ctx context.Context, tx rbac.TxRepository) error {
		_, err := svc.GrantInTx(ctx, tx, uuid.Nil, user, rbac.RolePsychologist, rbac.SourceProfile)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.SourceManual, store.LinkSourceOf(user, rbac.RolePsychologist))
}

func TestOverlappingRolesShareCodes(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	ctx := context.Background()
	user := store.NewUser()

	for _, code := range []string{"user", "psychologist"} {
		_, err := svc.AssignRole(ctx, uuid.Nil, user, code)
		require.NoError(t, err)
	}

	set, err := svc.PermissionsOf(ctx, user)
	require.NoError(t, err)
	roles, err := svc.RolesOf(ctx, user)
	require.NoError(t, err)
	union := rbac.PermissionSet{}
	for _, role := range roles {
		union = union.Union(rbac.BundleOf(role.Code))
	}
	assert.Equal(t, union.Codes(), set.Codes())
	assert.Len(t, set, len(rbac.BundleOf(rbac.RoleUser))+len(rbac.BundleOf(rbac.RolePsychologist))-3)

	_, err = svc.RemoveRole(ctx, uuid.Nil, user, "psychologist")
	require.NoError(t, err)

	set, err = svc.PermissionsOf(ctx, user)
	require.NoError(t, err)
	assert.True(t, set.HasAll(rbac.PermAppointmentsViewOwn, rbac.PermUsersEditOwnProfile, rbac.PermPsychologistsView))
	assert.False(t, set.Has(rbac.PermAppointmentsAccept))
	assert.Equal(t, rbac.BundleOf(rbac.RoleUser).Codes(), set.Codes())
}

func TestSeedRollsBackOnFailure(t *testing.T) {
	store := rbactest.NewStore()
	svc := newService(t, store, false)
	store.FailTx = []error{assert.AnError}

	_, err := svc.Seed(context.Background())
	require.ErrorIs(t, err, assert.AnError)

	perms, err := svc.ListPermissions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestSetRolePermissionsInvalidatesEveryUser(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	ctx := context.Background()
	user := store.NewUser()
	_, err := svc.AssignRole(ctx, uuid.Nil, user, "content_manager")
	require.NoError(t, err)

	ok, err := svc.UserHasPermission(ctx, user, rbac.PermStatisticsView)
	require.NoError(t, err)
	require.False(t, ok)

	err = svc.SetRolePermissions(ctx, uuid.Nil, "content_manager", []string{"faq.edit", "statistics.view"})
	require.NoError(t, err)

	set, err := svc.PermissionsOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []rbac.PermissionCode{rbac.PermFAQEdit, rbac.PermStatisticsView}, set.Codes())

	err = svc.SetRolePermissions(ctx, uuid.Nil, "content_manager", []string{"faq.nuke"})
	assert.ErrorIs(t, err, rbac.ErrPermissionNotFound)
}

func TestPermissionsAreServedFromCache(t *testing.T) {
	store := rbactest.NewSeededStore()
	svc := newService(t, store, true)
	ctx := context.Background()
	user := store.NewUser()
	_, err := svc.AssignRole(ctx, uuid.Nil, user, "user")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		set, err := svc.PermissionsOf(ctx, user)
		require.NoError(t, err)
		assert.True(t, set.Has(rbac.PermAppointmentsCreateOwn))
	}
	assert.Equal(t, 1, store.Reads())

	_, err = svc.RemoveRole(ctx, uuid.Nil, user, "user")
	require.NoError(t, err)
	set, err := svc.PermissionsOf(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.Equal(t, 2, store.Reads())
}
