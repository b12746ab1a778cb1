package httpapi

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	authd "github.com/skillforge/authd"
)

type identityContextKey struct{}
type accessTokenContextKey struct{}

// IdentityFromContext returns the identity attached by Authenticate or
// OptionalAuthenticate.
func IdentityFromContext(ctx context.Context) (*authd.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authd.Identity)
	return id, ok
}

func accessTokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(accessTokenContextKey{}).(string)
	return tok
}

// Authenticate gates a route on a valid bearer access token. The
// pipeline is: token present, signature and expiry valid, not revoked,
// account still active. Each stage that fails rejects with 401; a
// backing-store failure rejects with 503 instead, never 401.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Access token is required")
			return
		}

		identity, err := s.engine.Authenticate(r.Context(), tok)
		if err != nil {
			s.metrics.authRejected(err)
			status, message, operational := mapError(err)
			if !operational {
				s.logger.Error("authenticate failed", "error", err)
			}
			writeError(w, status, message)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		ctx = context.WithValue(ctx, accessTokenContextKey{}, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthenticate runs the same pipeline as Authenticate but any
// failure, including a store outage, proceeds anonymously instead of
// rejecting. Handlers behind it personalize output only when an
// identity is present.
func (s *Server) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := s.engine.Authenticate(r.Context(), tok)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		ctx = context.WithValue(ctx, accessTokenContextKey{}, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireVerified rejects callers whose email is not verified. Must run
// after Authenticate.
func RequireVerified(next http.Handler) http.Handler {
	return requireIdentity(next, func(id *authd.Identity) (bool, string) {
		return id.IsVerified, "Email verification required"
	})
}

// RequirePremium rejects callers without a premium account. Must run
// after Authenticate.
func RequirePremium(next http.Handler) http.Handler {
	return requireIdentity(next, func(id *authd.Identity) (bool, string) {
		return id.IsPremium, "Premium subscription required"
	})
}

// RequireLevel rejects callers below the given level. Must run after
// Authenticate.
func RequireLevel(level int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requireIdentity(next, func(id *authd.Identity) (bool, string) {
			return id.Level >= level, "Level " + strconv.Itoa(level) + " required"
		})
	}
}

// RequireOwnership rejects callers whose identity does not match the
// URL parameter naming the resource owner. Must run after Authenticate.
func RequireOwnership(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requireIdentity(next, nil, func(r *http.Request, id *authd.Identity) (bool, string) {
			return chi.URLParam(r, param) == id.ID, "You can only access your own resources"
		})
	}
}

// RateLimit caps requests per authenticated user in a fixed window.
// Keying by user id rather than IP makes the limit travel with the
// account across connections. Must run after Authenticate. The
// X-RateLimit-* headers are emitted on every response, including the
// 429 at the moment of rejection.
func (s *Server) RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Access token is required")
				return
			}

			res, err := s.limiter.Hit(r.Context(), identity.ID, limit, window)
			if err != nil {
				// Fail closed, but as an outage, not a limit breach.
				writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(res.ResetAfter.Seconds()))))

			if !res.Allowed {
				s.metrics.rateLimited.Inc()
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireIdentity builds a 403 predicate gate. Exactly one of check or
// checkReq is used; predicates run against the already-resolved
// identity and never touch a store, so they cannot fail with a 500.
func requireIdentity(
	next http.Handler,
	check func(*authd.Identity) (bool, string),
	checkReq ...func(*http.Request, *authd.Identity) (bool, string),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "Access token is required")
			return
		}

		var allowed bool
		var reason string
		if check != nil {
			allowed, reason = check(identity)
		} else {
			allowed, reason = checkReq[0](r, identity)
		}

		if !allowed {
			writeError(w, http.StatusForbidden, reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	tok := header[len(prefix):]
	if tok == "" {
		return "", false
	}
	return tok, true
}
