// Command authd runs the authentication service: token issuance,
// refresh sessions, revocation, and rate limiting over Redis, with the
// user directory in Postgres (or in memory for development).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	authd "github.com/skillforge/authd"
	"github.com/skillforge/authd/actiontoken"
	"github.com/skillforge/authd/config"
	"github.com/skillforge/authd/credential"
	"github.com/skillforge/authd/httpapi"
	"github.com/skillforge/authd/password"
	"github.com/skillforge/authd/rate"
	"github.com/skillforge/authd/revoke"
	"github.com/skillforge/authd/session"
	"github.com/skillforge/authd/token"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	credentials, cleanup, err := buildCredentialStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		AccessTTL:     cfg.AccessTokenTTL(),
		RefreshSecret: []byte(cfg.RefreshSecret),
		RefreshTTL:    cfg.RefreshTokenTTL(),
		Issuer:        "authd",
	})
	if err != nil {
		return err
	}

	hasherCfg := password.DefaultConfig()
	if cfg.Argon2Memory > 0 {
		hasherCfg.Memory = cfg.Argon2Memory
	}
	if cfg.Argon2Time > 0 {
		hasherCfg.Time = cfg.Argon2Time
	}
	hasher, err := password.NewHasher(hasherCfg)
	if err != nil {
		return err
	}

	engine, err := authd.NewEngine(authd.EngineConfig{
		Codec:           codec,
		Credentials:     credentials,
		Sessions:        session.NewStore(rdb, "rs"),
		Revocations:     revoke.NewCache(rdb, "rv"),
		ActionTokens:    actiontoken.NewStore(rdb, "at"),
		Hasher:          hasher,
		ResetTTL:        cfg.ResetTTL(),
		VerificationTTL: cfg.VerificationTTL(),
	})
	if err != nil {
		return err
	}

	server := httpapi.NewServer(engine, rate.NewLimiter(rdb, "rl"), logger, httpapi.Config{
		RateLimit:  cfg.RateLimit,
		RateWindow: cfg.RateWindow(),
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildCredentialStore selects the Postgres adapter when a DSN is
// configured and falls back to the in-memory store otherwise.
func buildCredentialStore(cfg *config.Config, logger *slog.Logger) (credential.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory credential store")
		return credential.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return credential.NewPostgres(pool), pool.Close, nil
}
