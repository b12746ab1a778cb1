// Package config loads service configuration from the environment and
// an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the server needs to start. The two signing
// secrets are required: a deployment without them must die at startup,
// not limp along with a per-request fallback.
type Config struct {
	// ListenAddr is the HTTP listen address (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// RedisAddr is the Redis host:port backing sessions, revocations,
	// rate limits, and action tokens.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// DatabaseURL is the Postgres DSN for the credential store. Empty
	// selects the in-memory store (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// AccessSecret signs access tokens. Required.
	AccessSecret string `mapstructure:"ACCESS_TOKEN_SECRET"`
	// RefreshSecret signs refresh tokens; must differ from
	// AccessSecret. Required.
	RefreshSecret string `mapstructure:"REFRESH_TOKEN_SECRET"`
	// AccessTTL is the access token lifetime (e.g. "1h").
	AccessTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTTL is the refresh token lifetime (e.g. "168h").
	RefreshTTL string `mapstructure:"REFRESH_TOKEN_TTL"`

	// Argon2Memory is the argon2id memory cost in KiB.
	Argon2Memory uint32 `mapstructure:"ARGON2_MEMORY_KB"`
	// Argon2Time is the argon2id time cost.
	Argon2Time uint32 `mapstructure:"ARGON2_TIME"`

	// RateLimit is the default request cap per user per window on
	// rate-limited routes.
	RateLimit int `mapstructure:"RATE_LIMIT"`
	// RateWindowSeconds is the fixed window length in seconds.
	RateWindowSeconds int `mapstructure:"RATE_WINDOW_SECONDS"`

	// ResetTTLMinutes bounds password reset tokens.
	ResetTTLMinutes int `mapstructure:"RESET_TTL_MINUTES"`
	// VerificationTTLHours bounds email verification tokens.
	VerificationTTLHours int `mapstructure:"VERIFICATION_TTL_HOURS"`
}

// Load reads .env (if present), then builds and validates Config from
// the environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine (e.g. in CI)

	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so even required
	// values get a default registered before AutomaticEnv kicks in.
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "1h")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("ARGON2_MEMORY_KB", 64*1024)
	v.SetDefault("ARGON2_TIME", 2)
	v.SetDefault("RATE_LIMIT", 100)
	v.SetDefault("RATE_WINDOW_SECONDS", 60)
	v.SetDefault("RESET_TTL_MINUTES", 15)
	v.SetDefault("VERIFICATION_TTL_HOURS", 24)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.AccessSecret == "" {
		return nil, errors.New("config: ACCESS_TOKEN_SECRET must be set")
	}
	if cfg.RefreshSecret == "" {
		return nil, errors.New("config: REFRESH_TOKEN_SECRET must be set")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("config: access and refresh secrets must differ")
	}

	return &cfg, nil
}

// AccessTokenTTL parses AccessTTL, defaulting to 1h.
func (c *Config) AccessTokenTTL() time.Duration {
	return parseDuration(c.AccessTTL, time.Hour)
}

// RefreshTokenTTL parses RefreshTTL, defaulting to 7 days.
func (c *Config) RefreshTokenTTL() time.Duration {
	return parseDuration(c.RefreshTTL, 168*time.Hour)
}

// RateWindow returns the fixed window length.
func (c *Config) RateWindow() time.Duration {
	if c.RateWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// ResetTTL returns the reset token lifetime.
func (c *Config) ResetTTL() time.Duration {
	if c.ResetTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.ResetTTLMinutes) * time.Minute
}

// VerificationTTL returns the verification token lifetime.
func (c *Config) VerificationTTL() time.Duration {
	if c.VerificationTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.VerificationTTLHours) * time.Hour
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
