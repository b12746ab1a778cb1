package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	codec, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		AccessTTL:     time.Hour,
		RefreshSecret: []byte("refresh-secret-for-tests"),
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "authd-test",
	})
	require.NoError(t, err)
	return codec
}

func TestNewCodecRejectsMissingSecrets(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no access secret", Config{RefreshSecret: []byte("r"), AccessTTL: time.Hour, RefreshTTL: time.Hour}},
		{"no refresh secret", Config{AccessSecret: []byte("a"), AccessTTL: time.Hour, RefreshTTL: time.Hour}},
		{"zero access ttl", Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), RefreshTTL: time.Hour}},
		{"zero refresh ttl", Config{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), AccessTTL: time.Hour}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCodec(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	signed, expiresAt, err := codec.IssueAccess("u1", "a@x.com", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := codec.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "alice", claims.Username)
}

func TestRefreshRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	signed, _, err := codec.IssueRefresh("u1")
	require.NoError(t, err)

	claims, err := codec.VerifyRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.NotEmpty(t, claims.ID, "refresh tokens carry a jti")
}

func TestRefreshTokensAreDistinct(t *testing.T) {
	codec := newTestCodec(t)

	first, _, err := codec.IssueRefresh("u1")
	require.NoError(t, err)
	second, _, err := codec.IssueRefresh("u1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyExpiredAccessToken(t *testing.T) {
	codec := newTestCodec(t)

	// Sign a structurally valid token whose exp is already past, with
	// the codec's own secret, so only the expiry check can fail.
	claims := AccessClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			Issuer:    "authd-test",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("access-secret-for-tests"))
	require.NoError(t, err)

	_, err = codec.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	codec := newTestCodec(t)

	other, err := NewCodec(Config{
		AccessSecret:  []byte("a-completely-different-secret"),
		AccessTTL:     time.Hour,
		RefreshSecret: []byte("another-different-secret"),
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)

	signed, _, err := other.IssueAccess("u1", "a@x.com", "alice")
	require.NoError(t, err)

	_, err = codec.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	codec := newTestCodec(t)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := codec.VerifyAccess(tok)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", tok)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	codec := newTestCodec(t)

	access, _, err := codec.IssueAccess("u1", "a@x.com", "alice")
	require.NoError(t, err)
	refresh, _, err := codec.IssueRefresh("u1")
	require.NoError(t, err)

	_, err = codec.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrTokenMalformed, "access token must not refresh")

	_, err = codec.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed, "refresh token must not authenticate")
}
