package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPermissionCache(client, time.Minute), mr
}

func TestPermissionCacheDisabled(t *testing.T) {
	assert.Nil(t, NewPermissionCache(nil, time.Minute))
	var cache *PermissionCache
	set, err := cache.Fetch(context.Background(), uuid.New(), func(context.Context) (PermissionSet, error) {
		return NewPermissionSet(PermFAQEdit), nil
	})
	require.NoError(t, err)
	assert.True(t, set.Has(PermFAQEdit))
	assert.NoError(t, cache.InvalidateUser(context.Background(), uuid.New()))
	assert.NoError(t, cache.InvalidateAll(context.Background()))
}

func TestPermissionCacheStaleLoadIsNotServed(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()

	// The loader reads a snapshot, then a writer commits and invalidates
	// before the loader stores its result.
	_, err := cache.Fetch(ctx, user, func(ctx context.Context) (PermissionSet, error) {
		require.NoError(t, cache.InvalidateUser(ctx, user))
		return PermissionSet{}, nil
	})
	require.NoError(t, err)

	calls := 0
	set, err := cache.Fetch(ctx, user, func(context.Context) (PermissionSet, error) {
		calls++
		return NewPermissionSet(PermAppointmentsAccept), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, set.Has(PermAppointmentsAccept))
}

func TestPermissionCacheInvalidateAll(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	calls := 0
	loader := func(context.Context) (PermissionSet, error) {
		calls++
		return NewPermissionSet(PermFAQEdit), nil
	}

	_, err := cache.Fetch(ctx, user, loader)
	require.NoError(t, err)
	_, err = cache.Fetch(ctx, user, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, cache.InvalidateAll(ctx))
	_, err = cache.Fetch(ctx, user, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPermissionCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	user := uuid.New()
	calls := 0
	loader := func(context.Context) (PermissionSet, error) {
		calls++
		return PermissionSet{}, nil
	}

	_, err := cache.Fetch(ctx, user, loader)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = cache.Fetch(ctx, user, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPermissionCacheUnavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()
	_, err := cache.Fetch(context.Background(), uuid.New(), func(context.Context) (PermissionSet, error) {
		return PermissionSet{}, nil
	})
	assert.Error(t, err)
}
