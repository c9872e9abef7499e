package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "auth:revoked:"

// Denylist records revoked token ids in Redis until the token would have
// expired anyway, so the set never outgrows the live token population.
type Denylist struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewDenylist builds a Redis-backed denylist.
func NewDenylist(client redis.UniversalClient) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

// Revoke marks id as revoked until expiresAt. It reports false when the id was
// already revoked, which makes it usable as a single-use latch.
func (d *Denylist) Revoke(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	if id == "" {
		return false, errors.New("auth: token id required")
	}
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, denylistPrefix+id, expiresAt.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revoke token: %w", err)
	}
	return ok, nil
}

// IsRevoked reports whether id has been revoked.
func (d *Denylist) IsRevoked(ctx context.Context, id string) (bool, error) {
	if d == nil || d.client == nil {
		return false, nil
	}
	n, err := d.client.Exists(ctx, denylistPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check revocation: %w", err)
	}
	return n > 0, nil
}
