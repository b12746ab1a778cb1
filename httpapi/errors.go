package httpapi

import (
	"errors"
	"net/http"

	authd "github.com/skillforge/authd"
	"github.com/skillforge/authd/actiontoken"
	"github.com/skillforge/authd/credential"
	"github.com/skillforge/authd/rate"
	"github.com/skillforge/authd/revoke"
	"github.com/skillforge/authd/session"
	"github.com/skillforge/authd/token"
)

// mapError normalizes an engine error into a status code and a caller
// safe message. Anything unrecognized is reported as internal; the
// handler logs the real error and the caller sees a generic message.
func mapError(err error) (status int, message string, operational bool) {
	switch {
	case isStoreUnavailable(err):
		// A store outage must never read as "logged out" or "not found".
		return http.StatusServiceUnavailable, "Service temporarily unavailable", true

	case errors.Is(err, authd.ErrValidation),
		errors.Is(err, authd.ErrPasswordReuse):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, authd.ErrResetTokenInvalid),
		errors.Is(err, authd.ErrVerificationTokenInvalid):
		return http.StatusBadRequest, err.Error(), true

	case errors.Is(err, authd.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials", true
	case errors.Is(err, authd.ErrTokenRevoked):
		return http.StatusUnauthorized, "Token has been revoked", true
	case errors.Is(err, authd.ErrAccountInactive):
		return http.StatusUnauthorized, "Account is deactivated", true
	case errors.Is(err, authd.ErrRefreshExpired):
		return http.StatusUnauthorized, "Refresh token has expired", true
	case errors.Is(err, authd.ErrRefreshInvalid):
		return http.StatusUnauthorized, "Invalid refresh token", true
	case errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenMalformed):
		return http.StatusUnauthorized, "Invalid or expired token", true

	case errors.Is(err, authd.ErrAccountExists):
		return http.StatusConflict, err.Error(), true

	case errors.Is(err, authd.ErrUserNotFound),
		errors.Is(err, credential.ErrNotFound):
		return http.StatusNotFound, "User not found", true

	case errors.Is(err, session.ErrTokenCollision):
		// Integrity fault, not an auth outcome.
		return http.StatusInternalServerError, "Internal server error", false
	}

	return http.StatusInternalServerError, "Internal server error", false
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, session.ErrStoreUnavailable) ||
		errors.Is(err, revoke.ErrStoreUnavailable) ||
		errors.Is(err, rate.ErrStoreUnavailable) ||
		errors.Is(err, actiontoken.ErrStoreUnavailable) ||
		errors.Is(err, credential.ErrStoreUnavailable)
}
