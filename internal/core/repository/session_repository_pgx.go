package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository using pgx.
type PgxSessionRepository struct {
	pool PgxPool
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(pool PgxPool) *PgxSessionRepository {
	return &PgxSessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *PgxSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", s.UserID).
			Wrap(mapPgErr(err))
	}
	return nil
}

// GetByTokenHash looks up the session by token hash.
// Returns (nil, nil) when the token does not match any session.
func (r *PgxSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	query := `
		SELECT id::text, user_id::text, token_hash, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1
	`

	var s domain.Session
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "select session by token hash").
			Wrap(mapPgErr(err))
	}

	return &s, nil
}

// DeleteByTokenHash removes one session.
func (r *PgxSessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session by token hash").
			Wrap(mapPgErr(err))
	}
	return nil
}

// DeleteByUser removes every session owned by the user.
func (r *PgxSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1::uuid`, userID)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete sessions by user").
			With("user_id", userID).
			Wrap(mapPgErr(err))
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions that expired at or before now.
func (r *PgxSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired sessions").
			Wrap(mapPgErr(err))
	}
	return tag.RowsAffected(), nil
}
