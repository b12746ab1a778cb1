package authd

import "errors"

// Operational errors surfaced by the Engine. The HTTP layer maps each
// to a status code; anything not in this set (and not a store
// availability error from a backing package) is treated as an internal
// fault and hidden behind a generic 500.
var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password, so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned at registration for a duplicate
	// email or username.
	ErrAccountExists = errors.New("email or username already registered")
	// ErrAccountInactive is returned when a token or credential check
	// resolves to a deactivated account.
	ErrAccountInactive = errors.New("account is deactivated")
	// ErrUserNotFound is returned for lookups of unknown user IDs.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenRevoked is returned for an access token that was
	// blacklisted by logout before its natural expiry.
	ErrTokenRevoked = errors.New("token has been revoked")
	// ErrRefreshInvalid is returned for a refresh token that fails
	// signature or structure checks.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired is returned when the refresh token's session no
	// longer exists: expired, logged out, or invalidated by a password
	// change.
	ErrRefreshExpired = errors.New("refresh token has expired")
	// ErrResetTokenInvalid is returned for an unknown, expired, or
	// already-consumed password reset token.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrVerificationTokenInvalid is returned for an unknown, expired,
	// or already-consumed email verification token.
	ErrVerificationTokenInvalid = errors.New("invalid or expired verification token")
	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must differ from the current password")
)
