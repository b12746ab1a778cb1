// Package rate implements fixed-window request counting on Redis.
//
// Fixed window means non-overlapping buckets: the window boundary is
// set when the first hit creates the counter and is never moved by
// later hits. The algorithm admits up to 2x the limit across a window
// boundary; that trade-off is accepted for abuse prevention and must
// not be silently "fixed" into a sliding window.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps any Redis failure.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// hitScript increments the counter and, for the first hit only, starts
// the window in the same atomic step. Splitting INCR and PEXPIRE into
// two round trips would leave either an immortal key (expiry never set)
// or a window that resets on every hit (expiry set every time).
// Returns {count, remaining window millis}.
const hitScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var hitLua = redis.NewScript(hitScript)

// Result reports the outcome of one Hit.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewLimiter creates a Limiter using prefix as the Redis key namespace.
func NewLimiter(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{redis: client, prefix: prefix}
}

// Hit records one request for key and reports whether it is within the
// limit for the current window. Remaining reflects the post-increment
// count, so the hit that reaches the limit sees Remaining 0 and is
// still allowed; the next one is rejected.
func (l *Limiter) Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{}, errors.New("limit and window must be positive")
	}

	vals, err := hitLua.Run(ctx, l.redis, []string{l.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	count, ttlMillis := vals[0], vals[1]

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := time.Duration(ttlMillis) * time.Millisecond
	if resetAfter < 0 {
		resetAfter = window
	}

	return Result{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}, nil
}
