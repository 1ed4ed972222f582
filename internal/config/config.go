// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`

	// Itinerary service
	ItineraryURL     string        `env:"ITINERARY_URL" envDefault:"http://localhost:8081/api/itinerary/"`
	ItineraryTimeout time.Duration `env:"ITINERARY_TIMEOUT" envDefault:"60s"`

	// Dialogue
	ThinkingDelay     time.Duration `env:"THINKING_DELAY" envDefault:"500ms"`
	KnowledgeBasePath string        `env:"KNOWLEDGE_BASE_PATH"`

	// Session storage
	SessionStore  string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	// NATS settings
	NATSEnabled  bool   `env:"NATS_ENABLED" envDefault:"false"`
	NATSURL      string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`

	// Session tokens
	SessionTokenSecret string        `env:"SESSION_TOKEN_SECRET" envDefault:"development-secret-change-in-production"`
	SessionTokenTTL    time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"24h"`

	// CORS
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://*,http://*"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Telegram
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads configuration from environment variables.
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

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.SessionStore)
	}
	if c.ItineraryURL == "" {
		return errors.New("config: ITINERARY_URL must not be empty")
	}
	if c.ThinkingDelay < 0 {
		return errors.New("config: THINKING_DELAY must not be negative")
	}
	return nil
}

// TelegramEnabled reports whether the Telegram adapter should run.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}
