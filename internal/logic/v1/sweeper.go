package v1

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/metrics"
)

// Sweeper deletes expired sessions and reset records.
type Sweeper struct {
	sessions domain.SessionRepository
	resets   domain.PasswordResetRepository
	interval time.Duration
	opts     options
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(sessions domain.SessionRepository, resets domain.PasswordResetRepository, interval time.Duration, opts ...Option) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		resets:   resets,
		interval: interval,
		opts:     buildOptions(opts),
	}
}

// SweepOnce removes everything expired at the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) (sessions, resets int64, err error) {
	now := s.opts.now()

	sessions, err = s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, storeErr("sweep sessions", err)
	}
	metrics.SweptRecords.WithLabelValues("session").Add(float64(sessions))

	resets, err = s.resets.DeleteExpired(ctx, now)
	if err != nil {
		return sessions, 0, storeErr("sweep reset records", err)
	}
	metrics.SweptRecords.WithLabelValues("password_reset").Add(float64(resets))

	return sessions, resets, nil
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, resets, err := s.SweepOnce(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if sessions > 0 || resets > 0 {
				log.Debug().Int64("sessions", sessions).Int64("password_resets", resets).Msg("Expired records swept")
			}
		}
	}
}
