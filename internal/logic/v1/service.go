package v1

import (
	"context"
	"fmt"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/metrics"
	"github.com/duynhne/identity-service/middleware"
)

// BotVerifier decides whether a challenge token belongs to a human.
type BotVerifier interface {
	Verify(ctx context.Context, token string) bool
}

// AuthService implements the public auth operations on top of the
// credential store, session manager and reset flow.
// It MUST NOT access the database or any driver directly.
type AuthService struct {
	creds    *CredentialStore
	sessions *SessionManager
	resets   *PasswordResetService
	gate     BotVerifier
}

// NewAuthService creates a new AuthService with the given dependencies.
func NewAuthService(creds *CredentialStore, sessions *SessionManager, resets *PasswordResetService, gate BotVerifier) *AuthService {
	return &AuthService{
		creds:    creds,
		sessions: sessions,
		resets:   resets,
		gate:     gate,
	}
}

func (s *AuthService) checkBot(ctx context.Context, span trace.Span, token string) error {
	if s.gate.Verify(ctx, token) {
		metrics.BotGateDecisions.WithLabelValues("pass").Inc()
		return nil
	}
	metrics.BotGateDecisions.WithLabelValues("reject").Inc()
	span.AddEvent("bot_check.failed")
	return ErrBotCheckFailed
}

// Register creates an account and opens its first session.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.checkBot(ctx, span, req.RecaptchaToken); err != nil {
		metrics.AuthAttempts.WithLabelValues("register", metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("register: %w", err)
	}

	user, err := s.creds.Register(ctx, RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", metrics.ResultFailure).Inc()
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, err
	}

	token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("register", metrics.ResultError).Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("register", metrics.ResultSuccess).Inc()
	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")
	logger := pkgzerolog.FromContext(ctx)
	logger.Info().Str("user_id", user.ID).Msg("User registered")

	return &domain.AuthResponse{Token: token, User: *user}, nil
}

// Login verifies credentials, revokes the previous sessions of the account
// and opens a new one.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.checkBot(ctx, span, req.RecaptchaToken); err != nil {
		metrics.AuthAttempts.WithLabelValues("login", metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("login: %w", err)
	}

	user, err := s.creds.Authenticate(ctx, req.Login, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", metrics.ResultFailure).Inc()
		span.SetAttributes(attribute.Bool("auth.success", false))
		return nil, err
	}

	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		metrics.AuthAttempts.WithLabelValues("login", metrics.ResultError).Inc()
		return nil, err
	}
	token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login", metrics.ResultError).Inc()
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("login", metrics.ResultSuccess).Inc()
	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return &domain.AuthResponse{Token: token, User: *user}, nil
}

// Logout revokes the session of token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.RevokeSession(ctx, token)
}

// Me resolves a bearer token to its user.
func (s *AuthService) Me(ctx context.Context, token string) (*domain.User, error) {
	return s.sessions.ValidateSession(ctx, token)
}

// RequestPasswordReset runs the bot gate and issues a reset code.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, recaptchaToken string) error {
	ctx, span := middleware.StartSpan(ctx, "auth.request_password_reset", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.checkBot(ctx, span, recaptchaToken); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return s.resets.RequestReset(ctx, email)
}

// VerifyResetCode checks a code without consuming it.
func (s *AuthService) VerifyResetCode(ctx context.Context, email, code string) (bool, error) {
	return s.resets.VerifyCode(ctx, email, code)
}

// ResetPassword completes the reset flow.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return s.resets.CompleteReset(ctx, email, code, newPassword)
}
