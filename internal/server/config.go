// Package server provides configuration helpers that define runtime defaults
// and validation for the Huddle service.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all tunable settings for the coordinator. Every field can be
// overridden through the environment variable named in its tag.
type Config struct {
	Port           string   `env:"PORT" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`

	RoomCapacity     int           `env:"ROOM_CAPACITY" envDefault:"5"`
	NameMaxLength    int           `env:"NAME_MAX_LENGTH" envDefault:"32"`
	MessageMaxLength int           `env:"MESSAGE_MAX_LENGTH" envDefault:"1000"`
	RoomExpiry       time.Duration `env:"ROOM_EXPIRY" envDefault:"10m"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"10s"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"10"`

	// MaxSocketMessageSize is the read limit for a single WebSocket frame,
	// in bytes. It bounds the envelope, not the chat text, so it must stay
	// comfortably above MessageMaxLength.
	MaxSocketMessageSize int64         `env:"MAX_SOCKET_MESSAGE_SIZE" envDefault:"4096"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() Config {
	return sanitizeConfig(Config{
		Port:                 ":8080",
		AllowedOrigins:       []string{"http://localhost:8080"},
		RoomCapacity:         5,
		NameMaxLength:        32,
		MessageMaxLength:     1000,
		RoomExpiry:           10 * time.Minute,
		RateLimitWindow:      10 * time.Second,
		RateLimitMax:         10,
		MaxSocketMessageSize: 4096,
		ShutdownTimeout:      10 * time.Second,
	})
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to the tagged defaults for anything unset.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

// sanitizeConfig clamps nonsensical values back to their defaults so a bad
// environment cannot disable the caps the protocol relies on.
func sanitizeConfig(cfg Config) Config {
	def := Config{
		Port:                 ":8080",
		RoomCapacity:         5,
		NameMaxLength:        32,
		MessageMaxLength:     1000,
		RoomExpiry:           10 * time.Minute,
		RateLimitWindow:      10 * time.Second,
		RateLimitMax:         10,
		MaxSocketMessageSize: 4096,
		ShutdownTimeout:      10 * time.Second,
	}

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.RoomCapacity <= 0 {
		cfg.RoomCapacity = def.RoomCapacity
	}
	if cfg.NameMaxLength <= 0 {
		cfg.NameMaxLength = def.NameMaxLength
	}
	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = def.MessageMaxLength
	}
	if cfg.RoomExpiry <= 0 {
		cfg.RoomExpiry = def.RoomExpiry
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = def.RateLimitMax
	}
	if cfg.MaxSocketMessageSize <= 0 {
		cfg.MaxSocketMessageSize = def.MaxSocketMessageSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	return cfg
}
