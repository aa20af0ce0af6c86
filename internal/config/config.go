// Package config loads relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Port           string `env:"PORT" default:"5001"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" default:"*"`

	MaxConnections int           `env:"MAX_CONNECTIONS" default:"0"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE" default:"32"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT" default:"50ms"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	PingInterval   time.Duration `env:"PING_INTERVAL" default:"30s"`
	PongTimeout    time.Duration `env:"PONG_TIMEOUT" default:"60s"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE" default:"65536"`
	EventRate      float64       `env:"EVENT_RATE" default:"0"`
	EventBurst     int           `env:"EVENT_BURST" default:"10"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 0 and 65535, got %q", c.Port)
	}
	if c.MaxConnections < 0 {
		return errors.New("MAX_CONNECTIONS must not be negative")
	}
	if c.SendBufferSize < 1 {
		return errors.New("SEND_BUFFER_SIZE must be at least 1")
	}
	if c.SendTimeout < 0 {
		return errors.New("SEND_TIMEOUT must not be negative")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}
	if c.PingInterval <= 0 || c.PongTimeout <= c.PingInterval {
		return fmt.Errorf("PONG_TIMEOUT (%s) must exceed PING_INTERVAL (%s)", c.PongTimeout, c.PingInterval)
	}
	if c.MaxMessageSize < 1 {
		return errors.New("MAX_MESSAGE_SIZE must be at least 1")
	}
	if c.EventRate < 0 {
		return errors.New("EVENT_RATE must not be negative")
	}
	if c.EventRate > 0 && c.EventBurst < 1 {
		return errors.New("EVENT_BURST must be at least 1 when EVENT_RATE is set")
	}
	return nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Origins splits AllowedOrigins into its entries. A nil result means any
// origin is accepted.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
