// Package token signs and verifies the two bearer token kinds used by
// authd: short-lived access tokens and long-lived refresh tokens. The
// two kinds use independent HS256 secrets and TTLs so that compromise
// of one secret does not compromise the other, and so a refresh token
// can never pass for an access token.
//
// The codec is pure: no I/O, no shared mutable state. A single Codec
// may be used from any number of goroutines.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned by verification when the token's exp
	// claim is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned for any other verification failure:
	// bad signature, wrong structure, wrong token kind.
	ErrTokenMalformed = errors.New("token malformed")
)

// Config carries the signing material for both token kinds. Both
// secrets must be set; the constructor rejects an empty secret so that
// a misconfigured deployment fails at startup rather than per request.
type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. The typ
// claim pins the token kind; the jti gives every refresh token a
// distinct value even for back-to-back logins by the same user.
type RefreshClaims struct {
	UserID string `json:"uid"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

const refreshType = "refresh"

// Codec issues and verifies access and refresh tokens.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a Codec. Missing secrets and
// non-positive TTLs are configuration errors.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Codec{config: cfg}, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// IssueAccess signs an access token for the given identity and returns
// it with its expiry.
func (c *Codec) IssueAccess(userID, email, username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.config.AccessTTL)

	claims := AccessClaims{
		UserID:   userID,
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    c.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefresh signs a refresh token for the given user and returns it
// with its expiry. The caller is expected to persist the token in the
// session store; the codec itself keeps no record of it.
func (c *Codec) IssueRefresh(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.config.RefreshTTL)

	claims := RefreshClaims{
		UserID: userID,
		Type:   refreshType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    c.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.config.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// VerifyAccess parses and validates an access token. Library errors are
// normalized to ErrTokenExpired / ErrTokenMalformed so callers never
// depend on jwt-library error types.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenStr, claims, c.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token. A structurally
// valid token missing the refresh typ claim is rejected as malformed:
// an access token must never be exchangeable for new credentials.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenStr, claims, c.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.Type != refreshType {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (c *Codec) verify(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !parsed.Valid {
		return ErrTokenMalformed
	}
	return nil
}
