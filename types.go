package authd

import "time"

// Identity is the resolved caller attached to a request after
// authentication. It reflects the credential record at the time of the
// check, not at token issuance; a deactivated account fails
// authentication even while its tokens are unexpired.
type Identity struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsVerified bool   `json:"isVerified"`
	IsPremium  bool   `json:"isPremium"`
	Level      int    `json:"level"`
	XP         int    `json:"xp"`
}

// TokenPair is the credential set issued at registration, login, and
// refresh. The refresh token is also persisted server-side as a
// session row; the access token is stateless.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
