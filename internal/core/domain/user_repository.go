package domain

import (
	"context"
	"time"
)

// UserRepository defines the data-access contract for user operations.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only, never on a driver directly.
type UserRepository interface {
	// GetByID returns the user with the given ID.
	// Returns (nil, nil) when no user is found.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail returns the user with the given normalized email.
	// Returns (nil, nil) when no user is found.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername returns the user with the given normalized username.
	// Returns (nil, nil) when no user is found.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// ExistsByEmail reports whether the normalized email is taken.
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsByUsername reports whether the normalized username is taken.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Create inserts a new user. Unique violations surface as
	// ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, user *User) error

	// UpdatePassword replaces the password hash of the user with the given
	// email. Returns ErrNotFound when no row matched.
	UpdatePassword(ctx context.Context, email, passwordHash string, updatedAt time.Time) error
}
