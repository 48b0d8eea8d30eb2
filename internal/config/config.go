// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the gateway.
type Config struct {
	Env             string        `envconfig:"FORGEGATE_ENV" default:"development"`
	HTTPAddr        string        `envconfig:"FORGEGATE_HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"FORGEGATE_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"FORGEGATE_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"FORGEGATE_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"FORGEGATE_MAX_BODY_BYTES" default:"1048576"`

	TokenSecret   string        `envconfig:"FORGEGATE_TOKEN_SECRET" required:"true"`
	TokenTTL      time.Duration `envconfig:"FORGEGATE_TOKEN_TTL" default:"24h"`
	SigningSecret string        `envconfig:"FORGEGATE_SIGNING_SECRET" required:"true"`

	RatePerMinute int `envconfig:"FORGEGATE_RATE_PER_MINUTE" default:"60"`
	RateBurst     int `envconfig:"FORGEGATE_RATE_BURST" default:"10"`

	// HTTPRatePerSecond bounds inbound requests per client IP at the edge,
	// before any gateway decision runs.
	HTTPRatePerSecond float64 `envconfig:"FORGEGATE_HTTP_RATE_PER_SECOND" default:"20"`
	HTTPRateBurst     int     `envconfig:"FORGEGATE_HTTP_RATE_BURST" default:"40"`

	EnableSandbox       bool          `envconfig:"FORGEGATE_ENABLE_SANDBOX" default:"true"`
	EnableScan          bool          `envconfig:"FORGEGATE_ENABLE_SCAN" default:"true"`
	RequireSignature    bool          `envconfig:"FORGEGATE_REQUIRE_SIGNATURE" default:"false"`
	ComplexityThreshold int           `envconfig:"FORGEGATE_COMPLEXITY_THRESHOLD" default:"10"`
	SandboxTimeout      time.Duration `envconfig:"FORGEGATE_SANDBOX_TIMEOUT" default:"30s"`
	SandboxMemoryBytes  uint64        `envconfig:"FORGEGATE_SANDBOX_MEMORY_BYTES" default:"268435456"`
	SandboxCPUSeconds   uint64        `envconfig:"FORGEGATE_SANDBOX_CPU_SECONDS" default:"10"`
	SandboxMaxProcesses uint64        `envconfig:"FORGEGATE_SANDBOX_MAX_PROCESSES" default:"16"`

	MarketplaceURL string `envconfig:"FORGEGATE_MARKETPLACE_URL" default:""`

	// PGDSN switches the role/policy/credential store to Postgres when set;
	// empty keeps the in-memory store.
	PGDSN string `envconfig:"FORGEGATE_PG_DSN" default:""`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return nil, errors.New("token secret must be provided")
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, errors.New("signing secret must be provided")
	}
	return &cfg, nil
}

// IsProduction reports whether the gateway runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
