package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DispatchInline = "inline"
	DispatchAsynq  = "asynq"
)

type R2 struct {
	AccountID  string `env:"R2_ACCOUNT_ID"`
	AccessKey  string `env:"R2_ACCESS_KEY"`
	SecretKey  string `env:"R2_SECRET_KEY"`
	BucketName string `env:"R2_BUCKET_NAME"`
	// Endpoint overrides the account endpoint, e.g. for a local S3 emulator.
	Endpoint string `env:"R2_ENDPOINT"`
}

type Config struct {
	PostgresURI string `env:"POSTGRES_URI,required,notEmpty"`
	RedisURI    string `env:"REDIS_URI"`
	R2          R2
	SecretKey   string `env:"SECRET_KEY"`

	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	PostTimeout         time.Duration `env:"POST_TIMEOUT" envDefault:"60s"`
	ShutdownGrace       time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY" envDefault:"10"`
	DispatchMode        string        `env:"DISPATCH_MODE" envDefault:"inline"`
	LockWait            time.Duration `env:"LOCK_WAIT" envDefault:"10s"`
	LockSweepInterval   time.Duration `env:"LOCK_SWEEP_INTERVAL" envDefault:"1m"`
	SessionWarnWindow   time.Duration `env:"SESSION_WARN_WINDOW" envDefault:"1h"`

	OpsAddr   string `env:"OPS_ADDR" envDefault:":3000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads .env when present and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.PostTimeout <= 0 {
		return errors.New("POST_TIMEOUT must be positive")
	}
	if c.LockWait <= 0 || c.LockSweepInterval <= 0 {
		return errors.New("LOCK_WAIT and LOCK_SWEEP_INTERVAL must be positive")
	}
	switch len(c.SecretKey) {
	case 0, 16, 24, 32:
	default:
		return errors.New("SECRET_KEY must be 16, 24 or 32 bytes")
	}
	if c.DispatchConcurrency < 1 {
		return errors.New("DISPATCH_CONCURRENCY must be at least 1")
	}
	switch c.DispatchMode {
	case DispatchInline:
	case DispatchAsynq:
		if c.RedisURI == "" {
			return errors.New("DISPATCH_MODE=asynq requires REDIS_URI")
		}
	default:
		return fmt.Errorf("unknown DISPATCH_MODE %q", c.DispatchMode)
	}
	return nil
}
