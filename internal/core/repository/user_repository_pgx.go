package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/duynhne/identity-service/internal/core/domain"
)

const userColumns = `id::text, first_name, last_name, username, email, password_hash, role, created_at, updated_at`

// PgxUserRepository implements domain.UserRepository using pgx.
type PgxUserRepository struct {
	pool PgxPool
}

// NewUserRepository creates a new PgxUserRepository.
func NewUserRepository(pool PgxPool) *PgxUserRepository {
	return &PgxUserRepository{pool: pool}
}

// GetByID returns the user with the given ID.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "id = $1::uuid", id)
}

// GetByEmail returns the user with the given normalized email.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

// GetByUsername returns the user with the given normalized username.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

func (r *PgxUserRepository) getOne(ctx context.Context, where string, arg string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	var u domain.User
	var role string
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email,
		&u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "select user").
			Wrap(mapPgErr(err))
	}
	u.Role = domain.Role(role)

	return &u, nil
}

// ExistsByEmail reports whether the normalized email is taken.
func (r *PgxUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email)
}

// ExistsByUsername reports whether the normalized username is taken.
func (r *PgxUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PgxUserRepository) exists(ctx context.Context, query, arg string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&exists); err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").
			With("operation", "check user exists").
			Wrap(mapPgErr(err))
	}
	return exists, nil
}

// Create inserts a new user.
func (r *PgxUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, first_name, last_name, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Username, user.Email,
		user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(mapPgErr(err))
	}
	return nil
}

// UpdatePassword replaces the password hash for the given email.
func (r *PgxUserRepository) UpdatePassword(ctx context.Context, email, passwordHash string, updatedAt time.Time) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE email = $1`
	tag, err := r.pool.Exec(ctx, query, email, passwordHash, updatedAt)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			Wrap(mapPgErr(err))
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").Wrap(domain.ErrNotFound)
	}
	return nil
}

// Ping checks database connectivity.
func (r *PgxUserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(mapPgErr(err))
	}
	return nil
}
