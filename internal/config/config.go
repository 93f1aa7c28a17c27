// Package config loads service settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every tunable of the service.
type Config struct {
	Host     string `env:"LANCHAT_HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"LANCHAT_PORT" envDefault:"5000"`
	Database string `env:"LANCHAT_DB" envDefault:"./data/lanchat.db"`
	LogLevel string `env:"LANCHAT_LOG_LEVEL" envDefault:"info"`

	MaxMessageLength int `env:"LANCHAT_MAX_MESSAGE_LENGTH" envDefault:"1000"`
	HistoryLimit     int `env:"LANCHAT_HISTORY_LIMIT" envDefault:"50"`

	TypingTimeout time.Duration `env:"LANCHAT_TYPING_TIMEOUT" envDefault:"3s"`

	ReadTimeout  time.Duration `env:"LANCHAT_WS_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `env:"LANCHAT_WS_WRITE_TIMEOUT" envDefault:"10s"`
	PingInterval time.Duration `env:"LANCHAT_WS_PING_INTERVAL" envDefault:"30s"`
	SendBuffer   int           `env:"LANCHAT_WS_SEND_BUFFER" envDefault:"100"`

	ShutdownTimeout time.Duration `env:"LANCHAT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads the environment into a Config. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.Wrap(err, "load .env failed")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges that env parsing cannot express.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.Database == "" {
		return errors.New("database path must not be empty")
	}
	if c.MaxMessageLength < 1 {
		return errors.New("max message length must be positive")
	}
	if c.HistoryLimit < 1 {
		return errors.New("history limit must be positive")
	}
	if c.TypingTimeout <= 0 {
		return errors.New("typing timeout must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
