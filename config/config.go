// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the coordination server
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`

	// RedisURL is required; the session store has no in-process fallback
	// in a deployed posture. An empty value is only valid together with
	// UseMemoryStore.
	RedisURL       string `env:"REDIS_URL"`
	UseMemoryStore bool   `env:"USE_MEMORY_STORE" envDefault:"false"`

	// DatabasePath points at the durable participant store (sqlite)
	DatabasePath string `env:"DATABASE_PATH" envDefault:"classquiz.db"`

	// NATSURL selects the broker-backed compute queue when set;
	// empty falls back to the in-process worker with identical semantics
	NATSURL string `env:"NATS_URL"`

	// Admission ceilings
	MaxConnections          int `env:"MAX_CONNECTIONS" envDefault:"1000"`
	MaxConnectionsPerOrigin int `env:"MAX_CONNECTIONS_PER_ORIGIN" envDefault:"10"`

	// TicketTTL bounds how long an issued ticket authorizes an upgrade
	TicketTTL time.Duration `env:"TICKET_TTL" envDefault:"30s"`

	// AllowTicketReuse relaxes the single-use ticket check. Never enable
	// in production; it exists to ease local testing with reconnecting
	// clients.
	AllowTicketReuse bool `env:"ALLOW_TICKET_REUSE" envDefault:"false"`

	// ResultCacheTTL bounds how long computed pairing/insight results
	// are served from cache
	ResultCacheTTL time.Duration `env:"RESULT_CACHE_TTL" envDefault:"10m"`

	// IdleTimeout disconnects a client that sends nothing (not even a
	// heartbeat) for this long
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// Load reads .env (best effort) and the process environment
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedisURL == "" && !c.UseMemoryStore {
		return fmt.Errorf("REDIS_URL is required unless USE_MEMORY_STORE=true")
	}
	if c.AllowTicketReuse && !c.Development {
		return fmt.Errorf("ALLOW_TICKET_REUSE requires DEVELOPMENT=true")
	}
	if c.MaxConnections <= 0 || c.MaxConnectionsPerOrigin <= 0 {
		return fmt.Errorf("connection limits must be positive")
	}
	return nil
}
