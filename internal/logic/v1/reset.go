package v1

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/metrics"
	"github.com/duynhne/identity-service/middleware"
)

const (
	// ResetCodeTTL is how long a reset code stays live.
	ResetCodeTTL = 10 * time.Minute

	minResetPasswordLen = 8
	resetCodeMin        = 100000
	resetCodeSpan       = 900000
)

// Dispatcher delivers reset codes out of band. SendResetCode must not block
// on delivery.
type Dispatcher interface {
	SendResetCode(email, code string)
}

// PasswordResetService runs the code-based password recovery flow.
type PasswordResetService struct {
	resets     domain.PasswordResetRepository
	users      *CredentialStore
	sessions   *SessionManager
	dispatcher Dispatcher
	opts       options
}

// NewPasswordResetService wires the reset flow.
func NewPasswordResetService(
	resets domain.PasswordResetRepository,
	users *CredentialStore,
	sessions *SessionManager,
	dispatcher Dispatcher,
	opts ...Option,
) *PasswordResetService {
	return &PasswordResetService{
		resets:     resets,
		users:      users,
		sessions:   sessions,
		dispatcher: dispatcher,
		opts:       buildOptions(opts),
	}
}

// GenerateResetCode returns a uniformly distributed 6-digit code.
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeSpan))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+resetCodeMin), nil
}

// RequestReset issues a code for a known email. Unknown emails succeed
// silently without creating a record.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	ctx, span := middleware.StartSpan(ctx, "reset.request", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	email = NormalizeEmail(email)
	if email == "" {
		return invalid("Email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if user == nil {
		span.SetAttributes(attribute.Bool("reset.account_known", false))
		return nil
	}
	span.SetAttributes(attribute.Bool("reset.account_known", true))

	code, err := s.opts.newCode()
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := s.opts.now().UTC()
	record := &domain.PasswordResetRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(ResetCodeTTL),
		CreatedAt: now,
	}
	if err := s.resets.Create(ctx, record); err != nil {
		span.RecordError(err)
		return storeErr("create reset record", err)
	}

	metrics.ResetCodesIssued.Inc()
	s.dispatcher.SendResetCode(email, code)
	return nil
}

// VerifyCode reports whether a live record matches. It never consumes.
func (s *PasswordResetService) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return false, invalid("Email and code are required")
	}

	record, err := s.resets.FindLive(ctx, email, code, s.opts.now())
	if err != nil {
		return false, storeErr("find reset record", err)
	}
	return record != nil, nil
}

// CompleteReset consumes the code, sets the new password and revokes every
// session of the account.
func (s *PasswordResetService) CompleteReset(ctx context.Context, email, code, newPassword string) error {
	ctx, span := middleware.StartSpan(ctx, "reset.complete", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || newPassword == "" {
		return invalid("Email, code and new password are required")
	}
	if len(newPassword) < minResetPasswordLen {
		return invalid("Password must be at least %d characters", minResetPasswordLen)
	}
	if len(newPassword) > maxPasswordBytes {
		return invalid("Password must be at most %d bytes", maxPasswordBytes)
	}

	consumed, err := s.resets.ConsumeLive(ctx, email, code, s.opts.now())
	if err != nil {
		span.RecordError(err)
		metrics.ResetCompletions.WithLabelValues(metrics.ResultError).Inc()
		return storeErr("consume reset record", err)
	}
	if !consumed {
		metrics.ResetCompletions.WithLabelValues(metrics.ResultFailure).Inc()
		return fmt.Errorf("complete reset: %w", ErrInvalidOrExpiredCode)
	}

	if err := s.users.ChangePassword(ctx, email, newPassword); err != nil {
		span.RecordError(err)
		metrics.ResetCompletions.WithLabelValues(metrics.ResultError).Inc()
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if user != nil {
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			span.RecordError(err)
			return err
		}
	}

	metrics.ResetCompletions.WithLabelValues(metrics.ResultSuccess).Inc()
	return nil
}

// PendingFor lists every reset record of the email, newest first.
func (s *PasswordResetService) PendingFor(ctx context.Context, email string) ([]domain.PasswordResetRecord, error) {
	records, err := s.resets.ListByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, storeErr("list reset records", err)
	}
	return records, nil
}
