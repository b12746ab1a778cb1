// Package revoke records access tokens that must be rejected before
// their natural expiry. Entries are keyed by the SHA-256 of the token
// and expire exactly when the token itself would have, so the cache
// never grows past the set of still-live revoked tokens.
//
// Only access tokens are blacklisted here. Refresh tokens are revoked
// implicitly by deleting their session row; a second blacklist for the
// same concern would add nothing.
package revoke

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps any Redis failure. A revocation check that
// cannot reach the store must fail closed at the caller, never open.
var ErrStoreUnavailable = errors.New("revocation cache unavailable")

// Cache is a Redis-backed access token blacklist.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCache creates a Cache using prefix as the Redis key namespace.
func NewCache(client redis.UniversalClient, prefix string) *Cache {
	if prefix == "" {
		prefix = "rv"
	}
	return &Cache{redis: client, prefix: prefix}
}

func (c *Cache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

// Revoke blacklists the token for its remaining lifetime. A token with
// no remaining life is already unusable; revoking it is a no-op.
func (c *Cache) Revoke(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	if err := c.redis.Set(ctx, c.key(token), 1, remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token has been blacklisted.
func (c *Cache) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
