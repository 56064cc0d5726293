// Package core wires the backing store selected by configuration.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/duynhne/identity-service/config"
	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/migrations"
	"github.com/duynhne/identity-service/internal/core/repository"
)

// Store bundles the repositories of one backing store.
type Store struct {
	Users    domain.UserRepository
	Sessions domain.SessionRepository
	Resets   domain.PasswordResetRepository
	Pinger   domain.Pinger

	migrate func(ctx context.Context) error
	close   func(ctx context.Context) error
}

// Migrate brings the schema (Postgres) or indexes (Mongo) up to date.
func (s *Store) Migrate(ctx context.Context) error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects to the configured driver and returns its repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		users := repository.NewUserRepository(pool)
		return &Store{
			Users:    users,
			Sessions: repository.NewSessionRepository(pool),
			Resets:   repository.NewResetRepository(pool),
			Pinger:   users,
			migrate:  func(ctx context.Context) error { return Migrate(ctx, pool) },
			close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case config.DriverMongo:
		client, err := ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Name)
		users := repository.NewMongoUserRepository(db)
		return &Store{
			Users:    users,
			Sessions: repository.NewMongoSessionRepository(db),
			Resets:   repository.NewMongoResetRepository(db),
			Pinger:   users,
			migrate:  func(ctx context.Context) error { return repository.EnsureMongoIndexes(ctx, db) },
			close:    client.Disconnect,
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		users := repository.NewMemoryUserRepository()
		return &Store{
			Users:    users,
			Sessions: repository.NewMemorySessionRepository(),
			Resets:   repository.NewMemoryResetRepository(),
			Pinger:   users,
		}, nil
	}

	return nil, oops.Code("CONFIG_INVALID").Errorf("unsupported database driver %q", cfg.Driver)
}

func connectBackoff(cfg config.DatabaseConfig) retry.Backoff {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(cfg.ConnectRetries, b)
}

// Connect creates a pgx pool and waits until the database answers a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	attempt := 0
	err = retry.Do(ctx, connectBackoff(cfg), func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Database not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.Host).
			With("attempts", attempt).
			Wrap(fmt.Errorf("%w: %v", domain.ErrUnavailable, err))
	}

	return pool, nil
}

// ConnectMongo creates a Mongo client and waits until the server answers a ping.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	attempt := 0
	err = retry.Do(ctx, connectBackoff(cfg), func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("MongoDB not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", attempt).
			Wrap(fmt.Errorf("%w: %v", domain.ErrUnavailable, err))
	}

	return client, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "goose up").Wrap(err)
	}
	return nil
}
