package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/duynhne/identity-service/config"
	"github.com/duynhne/identity-service/internal/botgate"
	database "github.com/duynhne/identity-service/internal/core"
	"github.com/duynhne/identity-service/internal/core/domain"
	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
	"github.com/duynhne/identity-service/internal/notify"
	v1 "github.com/duynhne/identity-service/internal/web/v1"
	"github.com/duynhne/identity-service/middleware"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

// services is the wired logic layer.
type services struct {
	auth    *logicv1.AuthService
	sweeper *logicv1.Sweeper
}

func buildServices(cfg *config.Config, store *database.Store, dispatcher logicv1.Dispatcher, gate logicv1.BotVerifier, secret []byte) services {
	creds := logicv1.NewCredentialStore(store.Users)
	sessions := logicv1.NewSessionManager(store.Sessions, creds, secret)
	resets := logicv1.NewPasswordResetService(store.Resets, creds, sessions, dispatcher)

	return services{
		auth:    logicv1.NewAuthService(creds, sessions, resets, gate),
		sweeper: logicv1.NewSweeper(store.Sessions, store.Resets, cfg.GetSweepIntervalDuration()),
	}
}

// newRouter builds the gin engine with operational and auth routes.
func newRouter(cfg *config.Config, auth *logicv1.AuthService, pinger domain.Pinger, draining *atomic.Bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Tracing.Enabled {
		r.Use(middleware.TracingMiddleware(cfg.Service.Name))
	}
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if draining.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := v1.NewHandler(auth)
	h.RegisterRoutes(r.Group(""))
	h.RegisterRoutes(r.Group("/api/v1"))

	return r
}

func sessionSecret(cfg *config.Config) ([]byte, error) {
	if cfg.Session.JWTSecret != "" {
		return []byte(cfg.Session.JWTSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn().Msg("JWT_SECRET not set, using an ephemeral secret; sessions will not survive restarts")
	return secret, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	zerolog.Setup(cfg.Logging.Level)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Str("db_driver", cfg.Database.Driver).
		Msg("Service starting")

	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().Str("endpoint", cfg.Profiling.Endpoint).Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", cfg.Database.Driver).Wrap(err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(context.Background())
			return err
		}
		log.Info().Msg("Database schema up to date")
	}

	dispatcher, err := notify.NewFromConfig(cfg, logicv1.ResetCodeTTL)
	if err != nil {
		_ = store.Close(context.Background())
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	secret, err := sessionSecret(cfg)
	if err != nil {
		_ = store.Close(context.Background())
		return err
	}

	gate := botgate.New(botgate.PolicyFromConfig(cfg), nil)
	svc := buildServices(cfg, store, dispatcher, gate, secret)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		svc.sweeper.Run(sweepCtx)
	}()

	var isShuttingDown atomic.Bool
	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           newRouter(cfg, svc.auth, store.Pinger, &isShuttingDown),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting identity service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	if drainDelay := cfg.GetReadinessDrainDelayDuration(); drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Stop accepting requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Stop the sweeper and drain in-flight mail
	stopSweep()
	<-sweepDone
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending mail deliveries abandoned")
	}

	// 3. Close database connections
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Database close error")
	} else {
		log.Info().Msg("Database closed")
	}

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
	return nil
}
