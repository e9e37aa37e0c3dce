// Package config loads playdate configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional YAML file.
const FileEnv = "PLAYDATE_CONFIG"

// Config holds all configuration for the playdate services.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Auth       AuthConfig       `yaml:"auth"`
	API        APIConfig        `yaml:"api" envPrefix:"API_"`
	Reconciler ReconcilerConfig `yaml:"reconciler" envPrefix:"RECONCILER_"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envPrefix:"OTEL_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`

	// ShutdownTimeout bounds graceful shutdown of the API server and worker.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
	TxRetry         TxRetryConfig `yaml:"tx_retry" envPrefix:"TX_RETRY_"`
}

// TxRetryConfig bounds retries of serialization failures.
type TxRetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"MAX_INTERVAL"`
}

// AuthConfig configures bearer tokens and password hashing.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry  time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// ReconcilerConfig configures the background resolution sweep.
type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Overlap  time.Duration `yaml:"overlap" env:"OVERLAP"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables
// export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"EXPORTER_OTLP_INSECURE"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACES_SAMPLER_ARG"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// Defaults returns the development defaults.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:             "postgres://localhost:5432/playdate?sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
			TxRetry: TxRetryConfig{
				MaxAttempts:     5,
				InitialInterval: 20 * time.Millisecond,
				MaxInterval:     500 * time.Millisecond,
			},
		},
		Auth: AuthConfig{
			JWTExpiry:  24 * time.Hour,
			BcryptCost: 12,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Reconciler: ReconcilerConfig{
			Interval: time.Minute,
			Overlap:  5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "playdate",
			SampleRatio: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration without validating required fields.
// A development JWT secret is filled in when none is set.
func LoadWithDefaults() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "development-secret-key-min-32-chars"
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.Auth.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT %d is out of range", c.API.Port))
	}
	if c.Reconciler.Interval <= 0 {
		errs = append(errs, errors.New("RECONCILER_INTERVAL must be positive"))
	}
	if c.Reconciler.Overlap < 0 {
		errs = append(errs, errors.New("RECONCILER_OVERLAP must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1"))
	}
	return errors.Join(errs...)
}
