// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the intake processes read from the environment.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":5000"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"messages.db"`

	AMQPURL      string `env:"AMQP_URL"`
	OutcomeTopic string `env:"OUTCOME_TOPIC" envDefault:"message_outcomes"`

	SubmitRatePerSecond int `env:"SUBMIT_RATE_PER_SECOND" envDefault:"1"`
	RatePerHour         int `env:"RATE_PER_HOUR" envDefault:"50"`
	RatePerDay          int `env:"RATE_PER_DAY" envDefault:"200"`

	MetricsRecentLimit int   `env:"METRICS_RECENT_LIMIT" envDefault:"100"`
	MaxUploadBytes     int64 `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file and parses the environment into a Config.
// The returned bool reports whether a .env file was found.
func Load(files ...string) (Config, bool, error) {
	foundDotEnv := godotenv.Load(files...) == nil

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, foundDotEnv, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, foundDotEnv, err
	}
	return cfg, foundDotEnv, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.OutcomeTopic == "" {
		return fmt.Errorf("OUTCOME_TOPIC must not be empty")
	}
	if c.MetricsRecentLimit <= 0 {
		return fmt.Errorf("METRICS_RECENT_LIMIT must be positive, got %d", c.MetricsRecentLimit)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}
