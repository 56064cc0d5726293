// Package config loads service configuration.
//
// Precedence (lowest to highest): built-in defaults, optional YAML file
// (CONFIG_FILE or --config), .env file, process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	// DriverMemory keeps everything in process. Development and tests only.
	DriverMemory = "memory"
)

// Config is the root configuration object.
type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Logging   LoggingConfig   `koanf:"logging"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Profiling ProfilingConfig `koanf:"profiling"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
	Recaptcha RecaptchaConfig `koanf:"recaptcha"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Sweeper   SweeperConfig   `koanf:"sweeper"`
	Shutdown  ShutdownConfig  `koanf:"shutdown"`
}

type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
	Env     string `koanf:"env"`
	Port    string `koanf:"port"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

type TracingConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	SampleRate float64 `koanf:"sample_rate"`
}

type ProfilingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
}

// DatabaseConfig selects and configures the backing store.
type DatabaseConfig struct {
	Driver         string `koanf:"driver"`
	Host           string `koanf:"host"`
	Port           string `koanf:"port"`
	Name           string `koanf:"name"`
	User           string `koanf:"user"`
	Password       string `koanf:"password"`
	SSLMode        string `koanf:"sslmode"`
	MaxConns       int32  `koanf:"max_conns"`
	MongoURI       string `koanf:"mongo_uri"`
	ConnectRetries uint64 `koanf:"connect_retries"`
	AutoMigrate    bool   `koanf:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type SessionConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

// RecaptchaConfig feeds botgate.Policy.
type RecaptchaConfig struct {
	Required  bool   `koanf:"required"`
	SecretKey string `koanf:"secret_key"`
	VerifyURL string `koanf:"verify_url"`
	Timeout   string `koanf:"timeout"`
}

type SMTPConfig struct {
	Host              string `koanf:"host"`
	Port              int    `koanf:"port"`
	Username          string `koanf:"username"`
	Password          string `koanf:"password"`
	Secure            bool   `koanf:"secure"`
	RequireTLS        bool   `koanf:"require_tls"`
	FromEmail         string `koanf:"from_email"`
	FromName          string `koanf:"from_name"`
	FallbackHost      string `koanf:"fallback_host"`
	FallbackPort      int    `koanf:"fallback_port"`
	ConnectionTimeout string `koanf:"connection_timeout"`
}

type SweeperConfig struct {
	Interval string `koanf:"interval"`
}

type ShutdownConfig struct {
	Timeout             string `koanf:"timeout"`
	ReadinessDrainDelay string `koanf:"readiness_drain_delay"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:    "identity-service",
			Version: "dev",
			Env:     EnvDevelopment,
			Port:    "8080",
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Profiling: ProfilingConfig{Endpoint: "http://localhost:4040"},
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			Host:           "localhost",
			Port:           "5432",
			Name:           "identity",
			User:           "postgres",
			Password:       "postgres",
			SSLMode:        "disable",
			MaxConns:       10,
			MongoURI:       "mongodb://localhost:27017",
			ConnectRetries: 5,
			AutoMigrate:    true,
		},
		Recaptcha: RecaptchaConfig{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			Timeout:   "5s",
		},
		SMTP: SMTPConfig{
			Host:              "smtp.gmail.com",
			Port:              587,
			FromName:          "InnovaTube",
			FallbackHost:      "smtp-relay.brevo.com",
			FallbackPort:      2525,
			ConnectionTimeout: "15s",
		},
		Sweeper: SweeperConfig{Interval: "1m"},
		Shutdown: ShutdownConfig{
			Timeout:             "10s",
			ReadinessDrainDelay: "5s",
		},
	}
}

// Load builds the configuration. path may be empty; CONFIG_FILE is used then.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("decode config file %q: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Service.Name, "SERVICE_NAME")
	setString(&cfg.Service.Version, "SERVICE_VERSION")
	setString(&cfg.Service.Env, "NODE_ENV")
	setString(&cfg.Service.Env, "ENV")
	setString(&cfg.Service.Port, "PORT")

	setString(&cfg.Logging.Level, "LOG_LEVEL")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFloat(&cfg.Tracing.SampleRate, "TRACING_SAMPLE_RATE")

	setBool(&cfg.Profiling.Enabled, "PROFILING_ENABLED")
	setString(&cfg.Profiling.Endpoint, "PYROSCOPE_ENDPOINT")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	if v, ok := lookup("DB_POOL_MAX_CONNECTIONS"); ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			cfg.Database.MaxConns = int32(n)
		}
	}
	setString(&cfg.Database.MongoURI, "MONGODB_URI")
	if v, ok := lookup("DB_CONNECT_RETRIES"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Database.ConnectRetries = n
		}
	}
	setBool(&cfg.Database.AutoMigrate, "DB_AUTO_MIGRATE")

	setString(&cfg.Session.JWTSecret, "JWT_SECRET")

	setBool(&cfg.Recaptcha.Required, "RECAPTCHA_REQUIRED")
	setString(&cfg.Recaptcha.SecretKey, "RECAPTCHA_SECRET_KEY")
	setString(&cfg.Recaptcha.VerifyURL, "RECAPTCHA_VERIFY_URL")
	setString(&cfg.Recaptcha.Timeout, "RECAPTCHA_TIMEOUT")

	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setBool(&cfg.SMTP.Secure, "SMTP_SECURE")
	cfg.SMTP.RequireTLS = cfg.SMTP.RequireTLS || cfg.SMTP.Secure
	setBool(&cfg.SMTP.RequireTLS, "SMTP_REQUIRE_TLS")
	setString(&cfg.SMTP.FromEmail, "SMTP_FROM_EMAIL")
	setString(&cfg.SMTP.FromName, "SMTP_FROM_NAME")
	setString(&cfg.SMTP.FallbackHost, "SMTP_FALLBACK_HOST")
	setInt(&cfg.SMTP.FallbackPort, "SMTP_FALLBACK_PORT")
	setString(&cfg.SMTP.ConnectionTimeout, "SMTP_CONNECTION_TIMEOUT")
	if cfg.SMTP.FromEmail == "" {
		cfg.SMTP.FromEmail = cfg.SMTP.Username
	}

	setString(&cfg.Sweeper.Interval, "SWEEP_INTERVAL")

	setString(&cfg.Shutdown.Timeout, "SHUTDOWN_TIMEOUT")
	setString(&cfg.Shutdown.ReadinessDrainDelay, "READINESS_DRAIN_DELAY")
}

// Validate reports configuration errors that would make the service unsafe
// or unable to start.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, errors.New("service port is required"))
	}
	if c.Service.Env != EnvDevelopment && c.Service.Env != EnvProduction && c.Service.Env != "test" {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Service.Env))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing sample rate %v out of range [0,1]", c.Tracing.SampleRate))
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMongo:
	case DriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("memory database driver is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.IsProduction() && c.Session.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.IsProduction() && c.Recaptcha.Required && c.Recaptcha.SecretKey == "" {
		errs = append(errs, errors.New("RECAPTCHA_SECRET_KEY is required in production when reCAPTCHA is required"))
	}

	for name, v := range map[string]string{
		"recaptcha timeout":       c.Recaptcha.Timeout,
		"smtp connection timeout": c.SMTP.ConnectionTimeout,
		"sweep interval":          c.Sweeper.Interval,
		"shutdown timeout":        c.Shutdown.Timeout,
		"readiness drain delay":   c.Shutdown.ReadinessDrainDelay,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, v, err))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Service.Env == EnvProduction
}

func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.Shutdown.Timeout, 10*time.Second)
}

func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	return parseDuration(c.Shutdown.ReadinessDrainDelay, 0)
}

func (c *Config) GetSweepIntervalDuration() time.Duration {
	return parseDuration(c.Sweeper.Interval, time.Minute)
}

func (c *Config) GetRecaptchaTimeoutDuration() time.Duration {
	return parseDuration(c.Recaptcha.Timeout, 5*time.Second)
}

func (c *Config) GetSMTPTimeoutDuration() time.Duration {
	return parseDuration(c.SMTP.ConnectionTimeout, 15*time.Second)
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// setBool accepts "true"/"1" and "false"/"0", case-insensitive.
func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		switch strings.ToLower(v) {
		case "true", "1":
			*dst = true
		case "false", "0":
			*dst = false
		}
	}
}
