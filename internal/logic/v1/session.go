package v1

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/metrics"
	"github.com/duynhne/identity-service/middleware"
)

// SessionTTL is the lifetime of a session and of its bearer token.
const SessionTTL = 7 * 24 * time.Hour

// SessionManager issues, validates and revokes bearer sessions.
type SessionManager struct {
	sessions domain.SessionRepository
	users    *CredentialStore
	secret   []byte
	opts     options
}

// NewSessionManager creates a SessionManager signing tokens with secret.
func NewSessionManager(sessions domain.SessionRepository, users *CredentialStore, secret []byte, opts ...Option) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		users:    users,
		secret:   secret,
		opts:     buildOptions(opts),
	}
}

// HashToken returns the storage key of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession signs a token for userID and persists its session record.
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	// JWT dates have second precision; keep the stored expiry identical.
	issuedAt := m.opts.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(SessionTTL)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sign token: %w", err)
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: issuedAt,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		span.RecordError(err)
		return "", storeErr("create session", err)
	}

	metrics.SessionsIssued.Inc()
	return token, nil
}

// ValidateSession resolves a bearer token to its user. Every rejection is
// reported as ErrUnauthenticated.
func (m *SessionManager) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "session.validate", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	reject := func(reason string) error {
		span.SetAttributes(
			attribute.Bool("session.valid", false),
			attribute.String("session.reject_reason", reason),
		)
		return fmt.Errorf("validate session (%s): %w", reason, ErrUnauthenticated)
	}

	if token == "" {
		return nil, reject("missing")
	}

	now := m.opts.now()
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, reject("token_expired")
		}
		return nil, reject("token_invalid")
	}

	session, err := m.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		span.RecordError(err)
		return nil, storeErr("lookup session", err)
	}
	if session == nil {
		return nil, reject("revoked")
	}
	if session.IsExpiredAt(now) {
		return nil, reject("expired")
	}
	if session.UserID != claims.Subject {
		return nil, reject("subject_mismatch")
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user == nil {
		return nil, reject("user_gone")
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("session.valid", true),
	)
	return user, nil
}

// RevokeSession deletes the session of token. Unknown tokens are ignored.
func (m *SessionManager) RevokeSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.sessions.DeleteByTokenHash(ctx, HashToken(token)); err != nil {
		return storeErr("revoke session", err)
	}
	metrics.SessionsRevoked.WithLabelValues("logout").Inc()
	return nil
}

// RevokeAllForUser deletes every session of userID.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID string) error {
	n, err := m.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return storeErr("revoke sessions", err)
	}
	metrics.SessionsRevoked.WithLabelValues("revoke_all").Add(float64(n))
	return nil
}
