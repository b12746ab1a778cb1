// Package authd is the authentication and session-lifecycle core of the
// platform. It issues and verifies bearer tokens, persists and revokes
// refresh sessions, blacklists access tokens on logout, and invalidates
// every session of a user when their password changes.
//
// The Engine owns no process-wide state. All shared state lives in the
// injected stores (credential directory, session table, revocation
// cache, action tokens); each store operation is individually atomic,
// so concurrent requests never need a global lock.
package authd

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/authd/actiontoken"
	"github.com/skillforge/authd/credential"
	"github.com/skillforge/authd/password"
	"github.com/skillforge/authd/revoke"
	"github.com/skillforge/authd/session"
	"github.com/skillforge/authd/token"
)

// EngineConfig carries the Engine's dependencies and tunables. All
// store fields are required.
type EngineConfig struct {
	Codec        *token.Codec
	Credentials  credential.Store
	Sessions     *session.Store
	Revocations  *revoke.Cache
	ActionTokens *actiontoken.Store
	Hasher       *password.Hasher

	// ResetTTL and VerificationTTL bound the single-use action tokens.
	ResetTTL        time.Duration
	VerificationTTL time.Duration

	// StoreTimeout caps every backing-store call. On timeout the
	// operation fails closed.
	StoreTimeout time.Duration
}

// Engine orchestrates the auth flows over the injected stores.
type Engine struct {
	codec        *token.Codec
	credentials  credential.Store
	sessions     *session.Store
	revocations  *revoke.Cache
	actionTokens *actiontoken.Store
	hasher       *password.Hasher

	resetTTL        time.Duration
	verificationTTL time.Duration
	storeTimeout    time.Duration
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Codec == nil:
		return nil, errors.New("engine requires a token codec")
	case cfg.Credentials == nil:
		return nil, errors.New("engine requires a credential store")
	case cfg.Sessions == nil:
		return nil, errors.New("engine requires a session store")
	case cfg.Revocations == nil:
		return nil, errors.New("engine requires a revocation cache")
	case cfg.ActionTokens == nil:
		return nil, errors.New("engine requires an action token store")
	case cfg.Hasher == nil:
		return nil, errors.New("engine requires a password hasher")
	}

	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 15 * time.Minute
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}

	return &Engine{
		codec:           cfg.Codec,
		credentials:     cfg.Credentials,
		sessions:        cfg.Sessions,
		revocations:     cfg.Revocations,
		actionTokens:    cfg.ActionTokens,
		hasher:          cfg.Hasher,
		resetTTL:        cfg.ResetTTL,
		verificationTTL: cfg.VerificationTTL,
		storeTimeout:    cfg.StoreTimeout,
	}, nil
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// Register creates a credential and issues a token pair. The refresh
// token is persisted as a session row before the pair is returned.
func (e *Engine) Register(ctx context.Context, email, username, pass string) (*Identity, *TokenPair, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, nil, errorf(ErrValidation, "a valid email is required")
	}
	if !usernameRe.MatchString(username) {
		return nil, nil, errorf(ErrValidation, "username must be 3-30 characters of letters, digits, or underscore")
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		if errors.Is(err, password.ErrWeakPassword) {
			return nil, nil, errorf(ErrValidation, err.Error())
		}
		return nil, nil, err
	}

	rec := &credential.Record{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		Level:        1,
		CreatedAt:    time.Now().UTC(),
	}

	cctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.credentials.Create(cctx, rec); err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			return nil, nil, ErrAccountExists
		}
		return nil, nil, err
	}

	pair, err := e.issuePair(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return identityOf(rec), pair, nil
}

// Login validates the credential and issues a fresh token pair. Each
// login adds a session row; a user may hold any number of concurrent
// sessions (multi-device).
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*Identity, *TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || pass == "" {
		return nil, nil, errorf(ErrValidation, "identifier and password are required")
	}

	rec, err := e.lookupIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			// Same failure as a wrong password; see ErrInvalidCredentials.
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := e.hasher.Verify(pass, rec.PasswordHash)
	if err != nil || !ok {
		return nil, nil, ErrInvalidCredentials
	}

	if !rec.IsActive {
		return nil, nil, ErrAccountInactive
	}

	pair, err := e.issuePair(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return identityOf(rec), pair, nil
}

// Refresh exchanges a still-valid refresh token for a new access token.
//
// The refresh token is not rotated: the same token keeps working until
// its session expires or is deleted by logout or a password change.
// Concurrent Refresh calls with one token therefore all succeed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := e.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", time.Time{}, ErrRefreshExpired
		}
		return "", time.Time{}, ErrRefreshInvalid
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	sess, err := e.sessions.FindByToken(sctx, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", time.Time{}, ErrRefreshExpired
		}
		return "", time.Time{}, err
	}
	if sess.UserID != claims.UserID {
		// A signed token resolving to someone else's row means the
		// store is corrupt, not that the caller is unauthorized.
		return "", time.Time{}, session.ErrTokenCollision
	}

	rec, err := e.activeUser(ctx, claims.UserID)
	if err != nil {
		return "", time.Time{}, err
	}

	return e.codec.IssueAccess(rec.ID, rec.Email, rec.Username)
}

// Logout revokes the access token for its remaining life and deletes
// the refresh session row. Either half succeeding alone still narrows
// the caller's access, so the two are attempted independently and the
// first error is reported after both ran.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var firstErr error

	if claims, err := e.codec.VerifyAccess(accessToken); err == nil {
		remaining := time.Until(claims.ExpiresAt.Time)
		rctx, cancel := e.storeContext(ctx)
		firstErr = e.revocations.Revoke(rctx, accessToken, remaining)
		cancel()
	}

	if refreshToken != "" {
		sctx, cancel := e.storeContext(ctx)
		_, err := e.sessions.DeleteByToken(sctx, refreshToken)
		cancel()
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Authenticate resolves an access token to a live identity: signature
// and expiry, then the revocation blacklist, then a re-read of the
// credential record. The re-read is what guarantees a deactivated
// account cannot keep using a still-unexpired, unrevoked token.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := e.codec.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	rctx, cancel := e.storeContext(ctx)
	revoked, err := e.revocations.IsRevoked(rctx, accessToken)
	cancel()
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	rec, err := e.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return identityOf(rec), nil
}

// ChangePassword verifies the current password, stores a new hash, and
// deletes every session of the user so stolen refresh tokens die with
// the old password.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPass, newPass string) error {
	if oldPass == newPass {
		return ErrPasswordReuse
	}

	rec, err := e.activeUser(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(oldPass, rec.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(newPass)
	if err != nil {
		if errors.Is(err, password.ErrWeakPassword) {
			return errorf(ErrValidation, err.Error())
		}
		return err
	}

	cctx, cancel := e.storeContext(ctx)
	err = e.credentials.UpdatePasswordHash(cctx, userID, hash)
	cancel()
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	_, err = e.sessions.DeleteAllForUser(sctx, userID)
	return err
}

// ForgotPassword issues a single-use reset token for the account behind
// email. For unknown addresses it returns an empty token and no error,
// so the endpoint's response never reveals whether an account exists.
// Delivery of the token is the mailer's job, not this core's.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (string, error) {
	cctx, cancel := e.storeContext(ctx)
	rec, err := e.credentials.GetByEmail(cctx, email)
	cancel()
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	actx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.actionTokens.Issue(actx, actiontoken.PurposeReset, rec.ID, e.resetTTL)
}

// ResetPassword consumes a reset token, stores the new password hash,
// and deletes all sessions for the user.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPass string) error {
	actx, cancel := e.storeContext(ctx)
	userID, err := e.actionTokens.Consume(actx, actiontoken.PurposeReset, resetToken)
	cancel()
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	hash, err := e.hasher.Hash(newPass)
	if err != nil {
		if errors.Is(err, password.ErrWeakPassword) {
			return errorf(ErrValidation, err.Error())
		}
		return err
	}

	cctx, cancel := e.storeContext(ctx)
	err = e.credentials.UpdatePasswordHash(cctx, userID, hash)
	cancel()
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	_, err = e.sessions.DeleteAllForUser(sctx, userID)
	return err
}

// RequestEmailVerification issues a single-use verification token for
// the user, for delivery by the mailer.
func (e *Engine) RequestEmailVerification(ctx context.Context, userID string) (string, error) {
	actx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.actionTokens.Issue(actx, actiontoken.PurposeVerifyEmail, userID, e.verificationTTL)
}

// VerifyEmail consumes a verification token and flags the credential
// verified.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	actx, cancel := e.storeContext(ctx)
	userID, err := e.actionTokens.Consume(actx, actiontoken.PurposeVerifyEmail, verifyToken)
	cancel()
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return err
	}

	cctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.credentials.MarkVerified(cctx, userID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrVerificationTokenInvalid
		}
		return err
	}
	return nil
}

// Ping reports backing-store health.
func (e *Engine) Ping(ctx context.Context) error {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.sessions.Ping(sctx)
}

func (e *Engine) issuePair(ctx context.Context, rec *credential.Record) (*TokenPair, error) {
	access, accessExp, err := e.codec.IssueAccess(rec.ID, rec.Email, rec.Username)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := e.codec.IssueRefresh(rec.ID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.sessions.Create(sctx, rec.ID, refresh, refreshExp); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (e *Engine) lookupIdentifier(ctx context.Context, identifier string) (*credential.Record, error) {
	cctx, cancel := e.storeContext(ctx)
	defer cancel()

	if strings.Contains(identifier, "@") {
		return e.credentials.GetByEmail(cctx, identifier)
	}
	return e.credentials.GetByUsername(cctx, identifier)
}

// activeUser re-reads the credential and rejects missing or inactive
// accounts with ErrAccountInactive. Store failures pass through
// unchanged so they are never mistaken for a dead account.
func (e *Engine) activeUser(ctx context.Context, userID string) (*credential.Record, error) {
	cctx, cancel := e.storeContext(ctx)
	defer cancel()

	rec, err := e.credentials.GetByID(cctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrAccountInactive
		}
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrAccountInactive
	}
	return rec, nil
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

func identityOf(rec *credential.Record) *Identity {
	return &Identity{
		ID:         rec.ID,
		Email:      rec.Email,
		Username:   rec.Username,
		IsVerified: rec.IsVerified,
		IsPremium:  rec.IsPremium,
		Level:      rec.Level,
		XP:         rec.XP,
	}
}

func errorf(sentinel error, msg string) error {
	return &wrappedError{sentinel: sentinel, msg: msg}
}

// wrappedError keeps a human-readable message while staying matchable
// with errors.Is against its sentinel.
type wrappedError struct {
	sentinel error
	msg      string
}

func (w *wrappedError) Error() string { return w.msg }
func (w *wrappedError) Unwrap() error { return w.sentinel }
