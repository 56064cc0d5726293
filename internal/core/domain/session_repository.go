package domain

import (
	"context"
	"time"
)

// SessionRepository defines the data-access contract for session operations.
// All mutations are single atomic statements.
type SessionRepository interface {
	// Create inserts a new session. The token hash is unique.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash looks up the session by token hash.
	// Returns (nil, nil) when the token does not match any session.
	// Expired-but-not-yet-evicted sessions are returned; callers compare ExpiresAt.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes one session. Deleting a missing session is not an error.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes every session owned by the user and returns the count.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes sessions with expires_at <= now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
