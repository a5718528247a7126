package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Env                   string        `env:"APP_ENV" envDefault:"development"`
	ListenAddr            string        `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL           string        `env:"DATABASE_URL,notEmpty"`
	AMQPURL               string        `env:"AMQP_URL"`
	EmailQueue            string        `env:"EMAIL_QUEUE" envDefault:"attestation_emails"`
	RedisAddr             string        `env:"REDIS_ADDR"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisDB               int           `env:"REDIS_DB" envDefault:"0"`
	StartLockTTL          time.Duration `env:"START_LOCK_TTL" envDefault:"30s"`
	FanoutConcurrency     int           `env:"FANOUT_CONCURRENCY" envDefault:"8"`
	DefaultReminderDays   int           `env:"DEFAULT_REMINDER_DAYS" envDefault:"7"`
	DefaultEscalationDays int           `env:"DEFAULT_ESCALATION_DAYS" envDefault:"10"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	AppBaseURL            string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	// Shared secret the identity system sends on the first-login hook.
	IdentityHookToken     string        `env:"IDENTITY_HOOK_TOKEN"`
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	var cfg Config
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.FanoutConcurrency < 1 {
		cfg.FanoutConcurrency = 1
	}
	return cfg, nil
}

// WorkerConfig is the subset the email worker needs; it never touches the database.
type WorkerConfig struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	AMQPURL    string `env:"AMQP_URL,notEmpty"`
	EmailQueue string `env:"EMAIL_QUEUE" envDefault:"attestation_emails"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadWorker() (WorkerConfig, error) {
	var cfg WorkerConfig
	_ = godotenv.Load()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger for the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	return newLogger(c.Env, c.LogLevel)
}

func (c WorkerConfig) NewLogger() (*zap.Logger, error) {
	return newLogger(c.Env, c.LogLevel)
}

func newLogger(appEnv, logLevel string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", logLevel, err)
	}
	zc := zap.NewProductionConfig()
	if appEnv == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
