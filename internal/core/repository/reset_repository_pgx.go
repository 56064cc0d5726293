package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// PgxResetRepository implements domain.PasswordResetRepository using pgx.
type PgxResetRepository struct {
	pool PgxPool
}

// NewResetRepository creates a new PgxResetRepository.
func NewResetRepository(pool PgxPool) *PgxResetRepository {
	return &PgxResetRepository{pool: pool}
}

// Create stores a new reset record.
func (r *PgxResetRepository) Create(ctx context.Context, rec *domain.PasswordResetRecord) error {
	query := `
		INSERT INTO password_resets (id, email, code, expires_at, used, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Email, rec.Code, rec.ExpiresAt, rec.Used, rec.CreatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password reset").
			Wrap(mapPgErr(err))
	}
	return nil
}

// FindLive returns one unused, unexpired record for email and code.
// Returns (nil, nil) when none matches.
func (r *PgxResetRepository) FindLive(ctx context.Context, email, code string, now time.Time) (*domain.PasswordResetRecord, error) {
	query := `
		SELECT id::text, email, code, expires_at, used, created_at
		FROM password_resets
		WHERE email = $1 AND code = $2 AND used = false AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rec domain.PasswordResetRecord
	err := r.pool.QueryRow(ctx, query, email, code, now).Scan(
		&rec.ID, &rec.Email, &rec.Code, &rec.ExpiresAt, &rec.Used, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("RESET_FIND_FAILED").
			With("operation", "select live password reset").
			Wrap(mapPgErr(err))
	}
	return &rec, nil
}

// ConsumeLive flips used on matching live records in a single statement.
func (r *PgxResetRepository) ConsumeLive(ctx context.Context, email, code string, now time.Time) (bool, error) {
	query := `
		UPDATE password_resets
		SET used = true
		WHERE email = $1 AND code = $2 AND used = false AND expires_at > $3
	`
	tag, err := r.pool.Exec(ctx, query, email, code, now)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "consume password reset").
			Wrap(mapPgErr(err))
	}
	return tag.RowsAffected() > 0, nil
}

// ListByEmail returns every record for the email, newest first.
func (r *PgxResetRepository) ListByEmail(ctx context.Context, email string) ([]domain.PasswordResetRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, email, code, expires_at, used, created_at
		FROM password_resets
		WHERE email = $1
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, oops.Code("RESET_LIST_FAILED").
			With("operation", "list password resets").
			Wrap(mapPgErr(err))
	}
	defer rows.Close()

	var out []domain.PasswordResetRecord
	for rows.Next() {
		var rec domain.PasswordResetRecord
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Code, &rec.ExpiresAt, &rec.Used, &rec.CreatedAt); err != nil {
			return nil, oops.Code("RESET_SCAN_FAILED").
				With("operation", "scan password reset row").
				Wrap(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("RESET_ROWS_ERROR").
			With("operation", "iterate password reset rows").
			Wrap(err)
	}
	return out, nil
}

// DeleteExpired removes records that expired at or before now.
func (r *PgxResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired password resets").
			Wrap(mapPgErr(err))
	}
	return tag.RowsAffected(), nil
}
