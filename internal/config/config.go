// Package config loads client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all client settings. Command-line flags override these values.
type Config struct {
	APIURL     string        `env:"BOOKBAZAAR_API_URL" envDefault:"http://localhost:8080/api"`
	LogLevel   string        `env:"BOOKBAZAAR_LOG_LEVEL" envDefault:"warn"`
	Timeout    time.Duration `env:"BOOKBAZAAR_TIMEOUT" envDefault:"15s"`
	BorrowDays int           `env:"BOOKBAZAAR_BORROW_DAYS" envDefault:"7"`
	Breaker    Breaker       `envPrefix:"BOOKBAZAAR_BREAKER_"`
}

// Breaker holds circuit breaker settings.
type Breaker struct {
	MaxRequests  uint32        `env:"MAX_REQUESTS" envDefault:"1"`
	Interval     time.Duration `env:"INTERVAL" envDefault:"60s"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
	FailureRatio float64       `env:"FAILURE_RATIO" envDefault:"0.5"`
	MinRequests  uint32        `env:"MIN_REQUESTS" envDefault:"5"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BOOKBAZAAR_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.Timeout <= 0 {
		return errors.New("BOOKBAZAAR_TIMEOUT must be positive")
	}
	if c.BorrowDays < 1 || c.BorrowDays > 60 {
		return fmt.Errorf("BOOKBAZAAR_BORROW_DAYS must be between 1 and 60, got %d", c.BorrowDays)
	}
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("BOOKBAZAAR_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.Breaker.FailureRatio)
	}
	return nil
}
