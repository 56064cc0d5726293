package domain

import (
	"context"
	"time"
)

// PasswordResetRepository defines the data-access contract for reset codes.
type PasswordResetRepository interface {
	// Create stores a new reset record.
	Create(ctx context.Context, record *PasswordResetRecord) error

	// FindLive returns a record matching email and code that is unused and
	// not expired at now. Returns (nil, nil) when none matches. Never mutates.
	FindLive(ctx context.Context, email, code string, now time.Time) (*PasswordResetRecord, error)

	// ConsumeLive marks matching live records as used in one conditional
	// update (used = false AND expires_at > now). Returns false when nothing
	// was updated.
	ConsumeLive(ctx context.Context, email, code string, now time.Time) (bool, error)

	// ListByEmail returns every record for the email, newest first.
	ListByEmail(ctx context.Context, email string) ([]PasswordResetRecord, error)

	// DeleteExpired removes records with expires_at <= now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
