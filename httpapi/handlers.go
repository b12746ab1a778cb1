// Package httpapi exposes the auth core over HTTP. It owns the JSON
// envelope, the middleware chain, and the translation of engine errors
// into the transport error taxonomy; the engine itself never sees a
// status code.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authd "github.com/skillforge/authd"
	"github.com/skillforge/authd/rate"
)

// Config tunes the HTTP layer.
type Config struct {
	// RateLimit and RateWindow apply to rate-limited authenticated
	// routes.
	RateLimit  int
	RateWindow time.Duration
}

// Server holds the handlers and middleware for the auth routes.
type Server struct {
	engine  *authd.Engine
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics
	config  Config
}

// NewServer builds a Server over the engine and limiter.
func NewServer(engine *authd.Engine, limiter *rate.Limiter, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Server{
		engine:  engine,
		limiter: limiter,
		logger:  logger,
		metrics: newMetrics(),
		config:  cfg,
	}
}

// Router assembles the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.Get("/verify-email/{token}", s.handleVerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(s.Authenticate)
			r.Post("/logout", s.handleLogout)
			r.Post("/change-password", s.handleChangePassword)

			r.With(s.RateLimit(s.config.RateLimit, s.config.RateWindow)).
				Get("/me", s.handleMe)
		})
	})

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	identity, pair, err := s.engine.Register(r.Context(), body.Email, body.Username, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.metrics.registrations.Inc()
	writeSuccess(w, http.StatusCreated, "Registration successful", map[string]any{
		"user":   identity,
		"tokens": pair,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	identity, pair, err := s.engine.Login(r.Context(), body.Identifier, body.Password)
	if err != nil {
		s.metrics.logins.WithLabelValues("failure").Inc()
		s.fail(w, r, err)
		return
	}

	s.metrics.logins.WithLabelValues("success").Inc()
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"user":   identity,
		"tokens": pair,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	access, expiresAt, err := s.engine.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.metrics.refreshes.WithLabelValues("failure").Inc()
		s.fail(w, r, err)
		return
	}

	s.metrics.refreshes.WithLabelValues("success").Inc()
	writeSuccess(w, http.StatusOK, "Token refreshed", map[string]any{
		"accessToken":     access,
		"accessExpiresAt": expiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// The refresh token travels in the body; the access token is the
	// one the Authenticate middleware already checked.
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.engine.Logout(r.Context(), accessTokenFromContext(r.Context()), body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}

	s.metrics.logouts.Inc()
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token is required")
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{"user": identity})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Access token is required")
		return
	}

	if err := s.engine.ChangePassword(r.Context(), identity.ID, body.CurrentPassword, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed; all sessions have been signed out", nil)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	resetToken, err := s.engine.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if resetToken != "" {
		// Delivery belongs to the mailer; the token is never echoed in
		// the response, so the reply is identical for unknown emails.
		s.logger.Info("password reset token issued", "email", body.Email)
	}
	writeSuccess(w, http.StatusOK, "If that email is registered, a reset link has been sent", nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	if err := s.engine.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password has been reset", nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Email verified", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	writeSuccess(w, http.StatusOK, "ok", nil)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.metrics.authRejected(err)
	status, message, operational := mapError(err)
	if !operational {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, message)
}
