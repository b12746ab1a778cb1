// Package actiontoken issues single-use, fixed-TTL tokens for flows
// that complete out of band: password reset and email verification.
// Tokens are 32 random bytes, handed to the caller base64url-encoded
// and stored in Redis only as a SHA-256 key, so a store dump never
// reveals a redeemable token. Consumption is GETDEL, which makes each
// token redeemable exactly once even under concurrent redemption.
package actiontoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose scopes a token to one flow; a reset token can never verify an
// email address.
type Purpose string

const (
	// PurposeReset marks password reset tokens.
	PurposeReset Purpose = "reset"
	// PurposeVerifyEmail marks email verification tokens.
	PurposeVerifyEmail Purpose = "verify"
)

var (
	// ErrNotFound is returned when the token is unknown, expired, or
	// already consumed.
	ErrNotFound = errors.New("action token not found")
	// ErrStoreUnavailable wraps any Redis failure.
	ErrStoreUnavailable = errors.New("action token store unavailable")
)

// Store issues and consumes single-use tokens.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store using prefix as the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "at"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(purpose Purpose, token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + string(purpose) + ":" + hex.EncodeToString(sum[:])
}

// Issue creates a token bound to userID under the given purpose and
// TTL, and returns the token value for delivery to the user.
func (s *Store) Issue(ctx context.Context, purpose Purpose, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("action token ttl must be positive")
	}

	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.redis.Set(ctx, s.key(purpose, token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

// Consume redeems the token and returns the bound user ID. The GETDEL
// read-and-delete is atomic: of two concurrent redemptions, exactly one
// succeeds.
func (s *Store) Consume(ctx context.Context, purpose Purpose, token string) (string, error) {
	userID, err := s.redis.GetDel(ctx, s.key(purpose, token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return userID, nil
}
