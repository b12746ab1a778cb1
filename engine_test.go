package authd

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/authd/actiontoken"
	"github.com/skillforge/authd/credential"
	"github.com/skillforge/authd/password"
	"github.com/skillforge/authd/revoke"
	"github.com/skillforge/authd/session"
	"github.com/skillforge/authd/token"
)

type testEnv struct {
	engine   *Engine
	users    *credential.Memory
	sessions *session.Store
	mr       *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret-for-tests"),
		RefreshTTL:    time.Hour,
		Issuer:        "authd-test",
	})
	require.NoError(t, err)

	hasher, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)

	users := credential.NewMemory()
	sessions := session.NewStore(rdb, "rs")

	engine, err := NewEngine(EngineConfig{
		Codec:        codec,
		Credentials:  users,
		Sessions:     sessions,
		Revocations:  revoke.NewCache(rdb, "rv"),
		ActionTokens: actiontoken.NewStore(rdb, "at"),
		Hasher:       hasher,
	})
	require.NoError(t, err)

	return &testEnv{engine: engine, users: users, sessions: sessions, mr: mr}
}

func (env *testEnv) register(t *testing.T) (*Identity, *TokenPair) {
	t.Helper()
	id, pair, err := env.engine.Register(context.Background(), "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	return id, pair
}

func TestRegisterIssuesWorkingPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, pair, err := env.engine.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	require.NotNil(t, id)
	require.NotNil(t, pair)

	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, 1, id.Level)
	assert.False(t, id.IsVerified)

	// The access token authenticates immediately.
	got, err := env.engine.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id.ID, got.ID)

	// The refresh token was persisted as a session row.
	count, err := env.sessions.ActiveSessionCount(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		username string
		pass     string
	}{
		{"bad email", "not-an-email", "alice", "correct horse"},
		{"empty email", "", "alice", "correct horse"},
		{"short username", "alice@example.com", "al", "correct horse"},
		{"username with spaces", "alice@example.com", "al ice", "correct horse"},
		{"weak password", "alice@example.com", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.engine.Register(ctx, tc.email, tc.username, tc.pass)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t)

	_, _, err := env.engine.Register(ctx, "alice@example.com", "alice2", "correct horse")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, _, err = env.engine.Register(ctx, "alice2@example.com", "alice", "correct horse")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestLoginByEmailAndUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, _ := env.register(t)

	byEmail, _, err := env.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, id.ID, byEmail.ID)

	byUsername, _, err := env.engine.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, id.ID, byUsername.ID)

	// Register + two logins leave three concurrent sessions.
	count, err := env.sessions.ActiveSessionCount(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t)

	_, _, wrongPass := env.engine.Login(ctx, "alice@example.com", "wrong password")
	_, _, unknown := env.engine.Login(ctx, "nobody@example.com", "correct horse")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	// Identical error values, so handlers cannot leak which one happened.
	assert.Equal(t, wrongPass, unknown)
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, _ := env.register(t)

	env.users.SetActive(id.ID, false)

	_, _, err := env.engine.Login(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, pair := env.register(t)

	access, exp, err := env.engine.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	got, err := env.engine.Authenticate(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, id.ID, got.ID)
}

func TestRefreshTokenIsNotRotated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	// The same refresh token keeps working across exchanges, so two
	// devices sharing a stored token never race each other out.
	for i := 0; i < 3; i++ {
		_, _, err := env.engine.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err, "refresh %d", i+1)
	}
}

func TestRefreshAfterSessionDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	_, err := env.sessions.DeleteByToken(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// The JWT is still signed and unexpired, but its session row is gone.
	_, _, err = env.engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.engine.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestRefreshStoreDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	env.mr.Close()

	// A store outage must surface as unavailability, never as an
	// expired or invalid token.
	_, _, err := env.engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrRefreshExpired)
}

func TestLogoutKillsBothTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	require.NoError(t, env.engine.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err := env.engine.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, _, err = env.engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)
}

func TestLogoutLeavesOtherSessionsAlive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, first := env.register(t)

	_, second, err := env.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, env.engine.Logout(ctx, first.AccessToken, first.RefreshToken))

	// Logout is per-session: the other device keeps working.
	_, err = env.engine.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	_, _, err = env.engine.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, pair := env.register(t)

	env.users.SetActive(id.ID, false)

	// The token itself is still valid and unrevoked; the credential
	// re-read is what rejects it.
	_, err := env.engine.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestAuthenticateStoreDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	env.mr.Close()

	_, err := env.engine.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, revoke.ErrStoreUnavailable)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, pair := env.register(t)

	_, extra, err := env.engine.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, env.engine.ChangePassword(ctx, id.ID, "correct horse", "battery staple"))

	// Every refresh session of the user is gone, on all devices.
	for _, refresh := range []string{pair.RefreshToken, extra.RefreshToken} {
		_, _, err := env.engine.Refresh(ctx, refresh)
		assert.ErrorIs(t, err, ErrRefreshExpired)
	}

	_, _, err = env.engine.Login(ctx, "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = env.engine.Login(ctx, "alice@example.com", "battery staple")
	require.NoError(t, err)
}

func TestChangePasswordRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, _ := env.register(t)

	err := env.engine.ChangePassword(ctx, id.ID, "correct horse", "correct horse")
	assert.ErrorIs(t, err, ErrPasswordReuse)

	err = env.engine.ChangePassword(ctx, id.ID, "wrong password", "battery staple")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.engine.ChangePassword(ctx, id.ID, "correct horse", "short")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, pair := env.register(t)

	resetToken, err := env.engine.ForgotPassword(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	require.NoError(t, env.engine.ResetPassword(ctx, resetToken, "battery staple"))

	// Sessions issued before the reset are dead.
	_, _, err = env.engine.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshExpired)

	_, _, err = env.engine.Login(ctx, "alice@example.com", "battery staple")
	require.NoError(t, err)

	// The token is single use.
	err = env.engine.ResetPassword(ctx, resetToken, "yet another pass")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	// No error and no token, so callers cannot probe for accounts.
	resetToken, err := env.engine.ForgotPassword(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, resetToken)
}

func TestEmailVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, pair := env.register(t)

	verifyToken, err := env.engine.RequestEmailVerification(ctx, id.ID)
	require.NoError(t, err)

	require.NoError(t, env.engine.VerifyEmail(ctx, verifyToken))

	got, err := env.engine.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	err = env.engine.VerifyEmail(ctx, verifyToken)
	assert.ErrorIs(t, err, ErrVerificationTokenInvalid)
}

func TestNewEngineRequiresStores(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	assert.Error(t, err)
}
