package revoke

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewCache(rdb, "rv"), mr
}

func TestRevokeAndCheck(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.Revoke(ctx, "tok-1", time.Hour); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err := cache.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if !revoked {
		t.Error("IsRevoked = false, want true")
	}

	revoked, err = cache.IsRevoked(ctx, "other-token")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Error("IsRevoked(other-token) = true, want false")
	}
}

func TestRevokeExpiredTokenIsNoOp(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	for _, remaining := range []time.Duration{0, -time.Minute} {
		if err := cache.Revoke(ctx, "tok-1", remaining); err != nil {
			t.Fatalf("Revoke(%v) failed: %v", remaining, err)
		}
	}

	revoked, err := cache.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Error("no-op Revoke created an entry")
	}
}

func TestRevocationEntryExpiresWithToken(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.Revoke(ctx, "tok-1", time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	revoked, err := cache.IsRevoked(ctx, "tok-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Error("entry outlived the token it revokes")
	}
}

func TestCacheUnavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	if _, err := cache.IsRevoked(context.Background(), "tok-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("IsRevoked with store down = %v, want ErrStoreUnavailable", err)
	}
}
