// Package session persists refresh sessions in Redis. A session binds
// the SHA-256 of a refresh token to the owning user and an expiry; a
// per-user set indexes every live session so that a password change can
// cascade-delete all of them.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session exists for the token, or
	// the stored session has passed its expiry.
	ErrNotFound = errors.New("session not found")
	// ErrTokenCollision is returned when Create finds an existing
	// session under the same token hash for a different user. Refresh
	// tokens carry enough entropy that this indicates corruption, not
	// bad luck; callers must treat it as fatal rather than retry.
	ErrTokenCollision = errors.New("refresh token collision")
	// ErrStoreUnavailable wraps any Redis failure. Callers must surface
	// it as a server-side error; an unreachable store never means
	// "logged out".
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// deleteScript removes a session key and prunes it from the user index
// in one atomic step, returning the number of session keys deleted.
const deleteScript = `
local deleted = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return deleted
`

var deleteLua = redis.NewScript(deleteScript)

// Session is one persisted refresh session.
type Session struct {
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
	CreatedAt int64  `json:"iat"`
}

// Expired reports whether the session's expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// Store is a Redis-backed refresh session table.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store using prefix as the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rs"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create inserts a new session for the token. The token value itself is
// never stored, only its hash. Insertion is SET NX so an existing row
// is never silently overwritten; a row already held by a different user
// is reported as ErrTokenCollision.
func (s *Store) Create(ctx context.Context, userID, token string, expiresAt time.Time) error {
	now := time.Now()
	if !expiresAt.After(now) {
		return errors.New("session expiry must be in the future")
	}

	sess := Session{
		UserID:    userID,
		ExpiresAt: expiresAt.Unix(),
		CreatedAt: now.Unix(),
	}
	data, err := json.Marshal(&sess)
	if err != nil {
		return err
	}

	tokenHash := hashToken(token)

	ok, err := s.redis.SetNX(ctx, s.key(tokenHash), data, expiresAt.Sub(now)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		existing, getErr := s.get(ctx, tokenHash)
		if getErr == nil && existing.UserID == userID {
			// Same user replaying the same create; the row already says
			// what we were about to write.
			return nil
		}
		return ErrTokenCollision
	}

	if err := s.redis.SAdd(ctx, s.userKey(userID), tokenHash).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FindByToken returns the session for the token, or ErrNotFound. A row
// past its expiry is deleted lazily and reported as not found.
func (s *Store) FindByToken(ctx context.Context, token string) (*Session, error) {
	tokenHash := hashToken(token)

	sess, err := s.get(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if sess.Expired(time.Now()) {
		if _, err := deleteLua.Run(ctx, s.redis,
			[]string{s.key(tokenHash), s.userKey(sess.UserID)}, tokenHash).Result(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, ErrNotFound
	}

	return sess, nil
}

// DeleteByToken removes the session for the token and returns how many
// rows were deleted (0 or 1).
func (s *Store) DeleteByToken(ctx context.Context, token string) (int, error) {
	tokenHash := hashToken(token)

	sess, err := s.get(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	deleted, err := deleteLua.Run(ctx, s.redis,
		[]string{s.key(tokenHash), s.userKey(sess.UserID)}, tokenHash).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(deleted), nil
}

// DeleteAllForUser removes every session for the user and returns the
// number deleted. Used on password change and account deletion.
//
// The read of the user index and the deletes are separate steps; a
// session created between them is not captured. That stray session
// expires naturally or is caught by the next call.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	tokenHashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(tokenHashes) == 0 {
		if err := s.redis.Del(ctx, userKey).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return 0, nil
	}

	keys := make([]string, 0, len(tokenHashes))
	for _, h := range tokenHashes {
		keys = append(keys, s.key(h))
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx, keys...)
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return int(delCmd.Val()), nil
}

// ActiveSessionCount returns the number of indexed sessions for a user.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// Ping reports Redis availability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record", ErrStoreUnavailable)
	}
	return &sess, nil
}
