package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "rbac:perms:version"
	cacheGenPrefix  = "rbac:perms:gen:"
	cacheSetPrefix  = "rbac:perms:set:"
)

// PermissionCache stores effective permission sets in Redis.
//
// Entries are keyed by a global version and a per-user generation. Writers bump
// the counter after commit, so a reader that loaded a pre-commit snapshot can
// only ever store it under a key nobody reads again.
type PermissionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionCache returns nil when ttl is not positive, which disables caching.
func NewPermissionCache(client redis.UniversalClient, ttl time.Duration) *PermissionCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &PermissionCache{client: client, ttl: ttl}
}

// Fetch returns the cached set for userID or populates it with loader.
func (c *PermissionCache) Fetch(ctx context.Context, userID uuid.UUID, loader func(context.Context) (PermissionSet, error)) (PermissionSet, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return decodeSet(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rbac: cache get: %w", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		set, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(set.Codes())
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("rbac: cache set: %w", err)
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers may mutate their copy; singleflight shares the value.
	return PermissionSet{}.Union(v.(PermissionSet)), nil
}

// InvalidateUser makes every cached set of userID unreachable.
func (c *PermissionCache) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	if c == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheGenPrefix+userID.String()).Err(); err != nil {
		return fmt.Errorf("rbac: invalidate user: %w", err)
	}
	return nil
}

// InvalidateAll makes every cached set unreachable. Used when a role bundle changes.
func (c *PermissionCache) InvalidateAll(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("rbac: invalidate all: %w", err)
	}
	return nil
}

func (c *PermissionCache) key(ctx context.Context, userID uuid.UUID) (string, error) {
	vals, err := c.client.MGet(ctx, cacheVersionKey, cacheGenPrefix+userID.String()).Result()
	if err != nil {
		return "", fmt.Errorf("rbac: cache key: %w", err)
	}
	return fmt.Sprintf("%s%s:%s:%s", cacheSetPrefix, userID, counter(vals[0]), counter(vals[1])), nil
}

func counter(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "0"
}

func decodeSet(raw []byte) (PermissionSet, error) {
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, fmt.Errorf("rbac: decode cached set: %w", err)
	}
	set := make(PermissionSet, len(codes))
	for _, c := range codes {
		if code, err := ParsePermissionCode(c); err == nil {
			set[code] = struct{}{}
		}
	}
	return set, nil
}
